package task

import (
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"time"
)

var (
	ErrNotFound  = errors.New("task not found")
	ErrInvalidID = errors.New("invalid task id")
)

type SubTask struct {
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
}

type Task struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	EstimatedDate *time.Time `json:"estimatedDate,omitempty"`
	OwnerID       int64      `json:"userId"`
	IsCompleted   bool       `json:"isCompleted"`
	SubTasks      []SubTask  `json:"subTasks"`
	Repeat        string     `json:"repeat,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Date is an estimated date as clients send it: a calendar day such as
// "2025-03-10", read as UTC midnight, or a full RFC3339 timestamp.
type Date struct {
	time.Time
}

var dateType = reflect.TypeOf(Date{})

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return &json.UnmarshalTypeError{Value: "non-string", Type: dateType}
	}

	if t, err := time.Parse(dayLayout, s); err == nil {
		d.Time = t
		return nil
	}

	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return &json.UnmarshalTypeError{Value: "string " + strconv.Quote(s), Type: dateType}
	}
	d.Time = t.UTC()
	return nil
}

// FormatHint is used in bind error messages.
func (Date) FormatHint() string {
	return "a date (YYYY-MM-DD) or an RFC3339 timestamp"
}

type SubTaskInput struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	IsCompleted *bool  `json:"isCompleted"`
}

type CreateTaskRequest struct {
	Title         string         `json:"title" binding:"required,min=1,max=200"`
	Description   string         `json:"description" binding:"omitempty,max=2000"`
	EstimatedDate *Date          `json:"estimatedDate"`
	IsCompleted   *bool          `json:"isCompleted"`
	SubTasks      []SubTaskInput `json:"subTasks" binding:"omitempty,max=100,dive"`
	Repeat        string         `json:"repeat" binding:"omitempty,max=40"`
}

// UpdateTaskRequest is a partial update: absent fields are left untouched.
// An explicit null clears description, estimatedDate or repeat.
type UpdateTaskRequest struct {
	Title         *string         `json:"title" binding:"omitempty,min=1,max=200"`
	Description   *string         `json:"description" binding:"omitempty,max=2000"`
	EstimatedDate *Date           `json:"estimatedDate"`
	IsCompleted   *bool           `json:"isCompleted"`
	SubTasks      *[]SubTaskInput `json:"subTasks" binding:"omitempty,max=100,dive"`
	Repeat        *string         `json:"repeat" binding:"omitempty,max=40"`

	ClearDescription   bool `json:"-"`
	ClearEstimatedDate bool `json:"-"`
	ClearRepeat        bool `json:"-"`
}

func (r *UpdateTaskRequest) UnmarshalJSON(b []byte) error {
	type fields UpdateTaskRequest

	var f fields
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	f.ClearDescription = isNull(raw, "description")
	f.ClearEstimatedDate = isNull(raw, "estimatedDate")
	f.ClearRepeat = isNull(raw, "repeat")

	*r = UpdateTaskRequest(f)
	return nil
}

func isNull(raw map[string]json.RawMessage, key string) bool {
	v, ok := raw[key]
	return ok && string(v) == "null"
}

// Patch is the store-level form of an update, with defaults applied. The
// Clear flags remove the field from the stored task.
type Patch struct {
	Title         *string
	Description   *string
	EstimatedDate *time.Time
	IsCompleted   *bool
	SubTasks      *[]SubTask
	Repeat        *string

	ClearDescription   bool
	ClearEstimatedDate bool
	ClearRepeat        bool
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.EstimatedDate == nil &&
		p.IsCompleted == nil && p.SubTasks == nil && p.Repeat == nil &&
		!p.ClearDescription && !p.ClearEstimatedDate && !p.ClearRepeat
}

func NewFromCreateRequest(ownerID int64, req CreateTaskRequest) Task {
	now := time.Now().UTC()

	completed := false
	if req.IsCompleted != nil {
		completed = *req.IsCompleted
	}

	return Task{
		Title:         req.Title,
		Description:   req.Description,
		EstimatedDate: req.EstimatedDate.utc(),
		OwnerID:       ownerID,
		IsCompleted:   completed,
		SubTasks:      subTasksFromInput(req.SubTasks),
		Repeat:        req.Repeat,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func PatchFromUpdateRequest(req UpdateTaskRequest) Patch {
	p := Patch{
		Title:              req.Title,
		Description:        req.Description,
		EstimatedDate:      req.EstimatedDate.utc(),
		IsCompleted:        req.IsCompleted,
		Repeat:             req.Repeat,
		ClearDescription:   req.ClearDescription,
		ClearEstimatedDate: req.ClearEstimatedDate,
		ClearRepeat:        req.ClearRepeat,
	}

	if req.SubTasks != nil {
		subs := subTasksFromInput(*req.SubTasks)
		p.SubTasks = &subs
	}

	return p
}

// Apply returns a copy of t with the patch applied. UpdatedAt is left to the
// caller.
func (p Patch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ClearDescription {
		t.Description = ""
	}
	if p.EstimatedDate != nil {
		d := *p.EstimatedDate
		t.EstimatedDate = &d
	}
	if p.ClearEstimatedDate {
		t.EstimatedDate = nil
	}
	if p.IsCompleted != nil {
		t.IsCompleted = *p.IsCompleted
	}
	if p.SubTasks != nil {
		t.SubTasks = append([]SubTask(nil), (*p.SubTasks)...)
	}
	if p.Repeat != nil {
		t.Repeat = *p.Repeat
	}
	if p.ClearRepeat {
		t.Repeat = ""
	}
	return t
}

func subTasksFromInput(in []SubTaskInput) []SubTask {
	out := make([]SubTask, 0, len(in))

	for _, s := range in {
		done := false
		if s.IsCompleted != nil {
			done = *s.IsCompleted
		}
		out = append(out, SubTask{Title: s.Title, IsCompleted: done})
	}

	return out
}

func (d *Date) utc() *time.Time {
	if d == nil {
		return nil
	}
	u := d.Time.UTC()
	return &u
}
