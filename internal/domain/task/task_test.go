package task

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "calendar day", in: `"2025-03-10"`, want: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)},
		{name: "utc timestamp", in: `"2025-03-10T09:30:00Z"`, want: time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)},
		{name: "offset timestamp", in: `"2025-03-10T01:00:00+02:00"`, want: time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)},
		{name: "not a date", in: `"next tuesday"`, wantErr: true},
		{name: "number", in: `20250310`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := json.Unmarshal([]byte(tt.in), &d)

			if tt.wantErr {
				var typeErr *json.UnmarshalTypeError
				require.True(t, errors.As(err, &typeErr), "got %v", err)
				assert.Equal(t, dateType, typeErr.Type)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.want.Equal(d.Time), "got %s", d.Time)
			assert.Equal(t, time.UTC, d.Location())
		})
	}
}

func TestCreateTaskRequest_DateOnlyEstimate(t *testing.T) {
	var req CreateTaskRequest
	require.NoError(t, json.Unmarshal([]byte(`{"title":"x","estimatedDate":"2025-03-10"}`), &req))

	got := NewFromCreateRequest(1, req)

	require.NotNil(t, got.EstimatedDate)
	assert.True(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).Equal(*got.EstimatedDate))

	day, err := DayRange("2025-03-10")
	require.NoError(t, err)
	assert.True(t, Filter{OwnerID: 1, Dates: &day}.Matches(got))
}

func TestUpdateTaskRequest_NullClearsOptionalFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want UpdateTaskRequest
	}{
		{name: "absent", body: `{"title":"t"}`, want: UpdateTaskRequest{Title: strPtr("t")}},
		{name: "null date", body: `{"estimatedDate":null}`, want: UpdateTaskRequest{ClearEstimatedDate: true}},
		{
			name: "null description and repeat",
			body: `{"description":null,"repeat":null}`,
			want: UpdateTaskRequest{ClearDescription: true, ClearRepeat: true},
		},
		{name: "empty string is a value", body: `{"repeat":""}`, want: UpdateTaskRequest{Repeat: strPtr("")}},
		{name: "null title is ignored", body: `{"title":null}`, want: UpdateTaskRequest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got UpdateTaskRequest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateTaskRequest_BadDateKeepsFieldName(t *testing.T) {
	var req UpdateTaskRequest
	err := json.Unmarshal([]byte(`{"estimatedDate":"soon"}`), &req)

	var typeErr *json.UnmarshalTypeError
	require.True(t, errors.As(err, &typeErr), "got %v", err)
	assert.Equal(t, "estimatedDate", typeErr.Field)
}

func TestPatch_ClearRemovesFields(t *testing.T) {
	orig := Task{
		Title:         "keep",
		Description:   "old notes",
		EstimatedDate: at("2025-03-10T09:00:00Z"),
		Repeat:        "daily",
	}

	p := PatchFromUpdateRequest(UpdateTaskRequest{
		ClearDescription:   true,
		ClearEstimatedDate: true,
		ClearRepeat:        true,
	})
	require.False(t, p.IsEmpty())

	got := p.Apply(orig)

	assert.Equal(t, "keep", got.Title)
	assert.Empty(t, got.Description)
	assert.Nil(t, got.EstimatedDate)
	assert.Empty(t, got.Repeat)
	assert.NotNil(t, orig.EstimatedDate)

	unscheduled := false
	assert.True(t, Filter{Scheduled: &unscheduled}.Matches(got))
}

func strPtr(s string) *string { return &s }
