package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/taskhub/internal/domain/task"
	"github.com/geocoder89/taskhub/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const tasksCollection = "tasks"

type subTaskDoc struct {
	Title       string `bson:"title"`
	IsCompleted bool   `bson:"isCompleted"`
}

type taskDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description,omitempty"`
	EstimatedDate *time.Time         `bson:"estimatedDate"`
	UserID        int64              `bson:"userId"`
	IsCompleted   bool               `bson:"isCompleted"`
	SubTasks      []subTaskDoc       `bson:"subTasks"`
	Repeat        string             `bson:"repeat,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt"`
}

func toDoc(t task.Task, id primitive.ObjectID) taskDoc {
	subs := make([]subTaskDoc, 0, len(t.SubTasks))
	for _, s := range t.SubTasks {
		subs = append(subs, subTaskDoc{Title: s.Title, IsCompleted: s.IsCompleted})
	}

	return taskDoc{
		ID:            id,
		Title:         t.Title,
		Description:   t.Description,
		EstimatedDate: t.EstimatedDate,
		UserID:        t.OwnerID,
		IsCompleted:   t.IsCompleted,
		SubTasks:      subs,
		Repeat:        t.Repeat,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func (d taskDoc) toTask() task.Task {
	subs := make([]task.SubTask, 0, len(d.SubTasks))
	for _, s := range d.SubTasks {
		subs = append(subs, task.SubTask{Title: s.Title, IsCompleted: s.IsCompleted})
	}

	var est *time.Time
	if d.EstimatedDate != nil {
		u := d.EstimatedDate.UTC()
		est = &u
	}

	return task.Task{
		ID:            d.ID.Hex(),
		Title:         d.Title,
		Description:   d.Description,
		EstimatedDate: est,
		OwnerID:       d.UserID,
		IsCompleted:   d.IsCompleted,
		SubTasks:      subs,
		Repeat:        d.Repeat,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
}

type TasksRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
	prom   *observability.Prom
}

func NewTasksRepo(client *mongo.Client, database string, prom *observability.Prom) *TasksRepo {
	return &TasksRepo{
		client: client,
		coll:   client.Database(database).Collection(tasksCollection),
		prom:   prom,
	}
}

func (r *TasksRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// EnsureIndexes creates the listing index. It is idempotent.
func (r *TasksRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "estimatedDate", Value: 1}, {Key: "createdAt", Value: 1}},
		Options: options.Index().SetName("user_estimated_created"),
	})
	if err != nil {
		return fmt.Errorf("create tasks index: %w", err)
	}
	return nil
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, task.ErrInvalidID
	}
	return oid, nil
}

func (r *TasksRepo) FindByID(ctx context.Context, id string) (task.Task, error) {
	oid, err := parseID(id)
	if err != nil {
		return task.Task{}, err
	}

	var doc taskDoc
	found := true

	err = r.observe("tasks.find_by_id", func() error {
		err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		return err
	})

	if err != nil {
		return task.Task{}, fmt.Errorf("find task: %w", err)
	}
	if !found {
		return task.Task{}, task.ErrNotFound
	}

	return doc.toTask(), nil
}

func (r *TasksRepo) Insert(ctx context.Context, t task.Task) (task.Task, error) {
	doc := toDoc(t, primitive.NewObjectID())

	err := r.observe("tasks.insert", func() error {
		_, err := r.coll.InsertOne(ctx, doc)
		return err
	})

	if err != nil {
		return task.Task{}, fmt.Errorf("insert task: %w", err)
	}

	return doc.toTask(), nil
}

// patchToUpdate builds the update document: provided fields go to $set and
// cleared ones to $unset, matching how toDoc omits empty values.
func patchToUpdate(p task.Patch, now time.Time) bson.M {
	update := bson.M{"$set": patchToSet(p, now)}

	unset := bson.M{}
	if p.ClearDescription {
		unset["description"] = ""
	}
	if p.ClearEstimatedDate {
		unset["estimatedDate"] = ""
	}
	if p.ClearRepeat {
		unset["repeat"] = ""
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	return update
}

func patchToSet(p task.Patch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}

	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.EstimatedDate != nil {
		set["estimatedDate"] = *p.EstimatedDate
	}
	if p.IsCompleted != nil {
		set["isCompleted"] = *p.IsCompleted
	}
	if p.SubTasks != nil {
		subs := make([]subTaskDoc, 0, len(*p.SubTasks))
		for _, s := range *p.SubTasks {
			subs = append(subs, subTaskDoc{Title: s.Title, IsCompleted: s.IsCompleted})
		}
		set["subTasks"] = subs
	}
	if p.Repeat != nil {
		set["repeat"] = *p.Repeat
	}

	return set
}

// UpdateFields applies p and returns the updated document.
func (r *TasksRepo) UpdateFields(ctx context.Context, id string, p task.Patch) (task.Task, error) {
	oid, err := parseID(id)
	if err != nil {
		return task.Task{}, err
	}

	var doc taskDoc
	found := true

	err = r.observe("tasks.update", func() error {
		err := r.coll.FindOneAndUpdate(
			ctx,
			bson.M{"_id": oid},
			patchToUpdate(p, time.Now().UTC()),
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		return err
	})

	if err != nil {
		return task.Task{}, fmt.Errorf("update task: %w", err)
	}
	if !found {
		return task.Task{}, task.ErrNotFound
	}

	return doc.toTask(), nil
}

// DeleteByID removes the task and returns what was stored.
func (r *TasksRepo) DeleteByID(ctx context.Context, id string) (task.Task, error) {
	oid, err := parseID(id)
	if err != nil {
		return task.Task{}, err
	}

	var doc taskDoc
	found := true

	err = r.observe("tasks.delete", func() error {
		err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": oid}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			found = false
			return nil
		}
		return err
	})

	if err != nil {
		return task.Task{}, fmt.Errorf("delete task: %w", err)
	}
	if !found {
		return task.Task{}, task.ErrNotFound
	}

	return doc.toTask(), nil
}

// filterDoc translates a task.Filter into the equivalent query document.
func filterDoc(f task.Filter) bson.M {
	and := bson.A{bson.M{"userId": f.OwnerID}}

	if f.Completed != nil {
		and = append(and, bson.M{"isCompleted": *f.Completed})
	}

	if f.Scheduled != nil {
		if *f.Scheduled {
			and = append(and, bson.M{"estimatedDate": bson.M{"$ne": nil}})
		} else {
			and = append(and, bson.M{"estimatedDate": nil})
		}
	}

	if f.Dates != nil {
		rng := bson.M{}
		if !f.Dates.From.IsZero() {
			rng["$gte"] = f.Dates.From
		}
		if !f.Dates.To.IsZero() {
			rng["$lt"] = f.Dates.To
		}
		if len(rng) == 0 {
			rng["$ne"] = nil
		}
		and = append(and, bson.M{"estimatedDate": rng})
	}

	return bson.M{"$and": and}
}

// Query lists tasks matching f. Missing estimated dates sort as null, which
// Mongo orders before any date.
func (r *TasksRepo) Query(ctx context.Context, f task.Filter) ([]task.Task, error) {
	var docs []taskDoc

	err := r.observe("tasks.query", func() error {
		cur, err := r.coll.Find(
			ctx,
			filterDoc(f),
			options.Find().SetSort(bson.D{
				{Key: "estimatedDate", Value: 1},
				{Key: "createdAt", Value: 1},
				{Key: "_id", Value: 1},
			}),
		)
		if err != nil {
			return err
		}
		return cur.All(ctx, &docs)
	})

	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	out := make([]task.Task, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toTask())
	}

	return out, nil
}

func (r *TasksRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}
