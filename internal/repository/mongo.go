package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Connect dials Mongo and pings it, retrying with exponential backoff until
// maxElapsed passes.
func Connect(ctx context.Context, uri string, attemptTimeout, maxElapsed time.Duration, log *zap.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	operation := func() error {
		actx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()
		c, err := mongo.Connect(actx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		if err := c.Ping(actx, nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed
	notify := func(err error, wait time.Duration) {
		log.Warn("mongo not ready, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return client, nil
}

// messageDoc keeps the field layout of the existing messages collection.
type messageDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	From      string             `bson:"from"`
	To        string             `bson:"to"`
	Content   string             `bson:"content"`
	Kind      string             `bson:"type"`
	Timestamp time.Time          `bson:"timestamp"`
}

func (d messageDoc) toDomain() domain.Message {
	return domain.Message{
		ID:        d.ID.Hex(),
		From:      d.From,
		To:        d.To,
		Content:   d.Content,
		Kind:      domain.Kind(d.Kind),
		Timestamp: d.Timestamp.UTC(),
	}
}

type MongoMessageStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMongoMessageStore(coll *mongo.Collection) *MongoMessageStore {
	return &MongoMessageStore{coll: coll, now: time.Now}
}

func (r *MongoMessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "from", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("from_timestamp_idx"),
		},
		{
			Keys:    bson.D{{Key: "to", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("to_timestamp_idx"),
		},
	})
	return errs.Store("ensure indexes", err)
}

func (r *MongoMessageStore) Append(ctx context.Context, d domain.Draft) (*domain.Message, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	doc := messageDoc{
		ID:        primitive.NewObjectID(),
		From:      d.From,
		To:        d.To,
		Content:   d.Content,
		Kind:      string(d.Kind),
		Timestamp: domain.StampTime(r.now()),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return nil, errs.Store("append", err)
	}
	m := doc.toDomain()
	return &m, nil
}

func pairFilter(a, b string) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "from", Value: a}, {Key: "to", Value: b}},
		bson.D{{Key: "from", Value: b}, {Key: "to", Value: a}},
	}}}
}

func (r *MongoMessageStore) History(ctx context.Context, a, b string) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, pairFilter(a, b), opts)
	if err != nil {
		return nil, errs.Store("history", err)
	}
	defer cur.Close(ctx)
	out := []domain.Message{}
	for cur.Next(ctx) {
		var d messageDoc
		if err := cur.Decode(&d); err != nil {
			return nil, errs.Store("history decode", err)
		}
		out = append(out, d.toDomain())
	}
	return out, errs.Store("history cursor", cur.Err())
}

// latestPerContactPipeline groups the user's messages by the other party and
// keeps the newest one of each group.
func latestPerContactPipeline(userID string) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "from", Value: userID}},
			bson.D{{Key: "to", Value: userID}},
		}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$from", userID}}},
				"$to",
				"$from",
			}}}},
			{Key: "message", Value: bson.D{{Key: "$first", Value: "$$ROOT"}}},
		}}},
	}
}

type latestDoc struct {
	ContactID string     `bson:"_id"`
	Message   messageDoc `bson:"message"`
}

func (r *MongoMessageStore) LatestPerContact(ctx context.Context, userID string) (map[string]domain.Message, error) {
	cur, err := r.coll.Aggregate(ctx, latestPerContactPipeline(userID))
	if err != nil {
		return nil, errs.Store("latest per contact", err)
	}
	defer cur.Close(ctx)
	out := make(map[string]domain.Message)
	for cur.Next(ctx) {
		var d latestDoc
		if err := cur.Decode(&d); err != nil {
			return nil, errs.Store("latest per contact decode", err)
		}
		out[d.ContactID] = d.Message.toDomain()
	}
	return out, errs.Store("latest per contact cursor", cur.Err())
}

type userDoc struct {
	ID       primitive.ObjectID `bson:"_id"`
	Name     string             `bson:"name"`
	Email    string             `bson:"email,omitempty"`
	Phone    string             `bson:"phone,omitempty"`
	PhotoURL string             `bson:"photoURL,omitempty"`
	Bio      string             `bson:"bio,omitempty"`
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:       d.ID.Hex(),
		Name:     d.Name,
		Email:    d.Email,
		Phone:    d.Phone,
		PhotoURL: d.PhotoURL,
		Bio:      d.Bio,
	}
}

// userProjection never returns the password hash.
var userProjection = bson.D{{Key: "password", Value: 0}}

type MongoUserDirectory struct {
	coll *mongo.Collection
}

func NewMongoUserDirectory(coll *mongo.Collection) *MongoUserDirectory {
	return &MongoUserDirectory{coll: coll}
}

func (r *MongoUserDirectory) Get(ctx context.Context, id string) (*domain.User, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, errs.NotFound("user", id)
	}
	var d userDoc
	err = r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}, options.FindOne().SetProjection(userProjection)).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("user", id)
	}
	if err != nil {
		return nil, errs.Store("get user", err)
	}
	u := d.toDomain()
	return &u, nil
}

func (r *MongoUserDirectory) FindByIDs(ctx context.Context, ids []string) (map[string]domain.User, error) {
	oids := make(bson.A, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			oids = append(oids, oid)
		}
	}
	out := make(map[string]domain.User, len(oids))
	if len(oids) == 0 {
		return out, nil
	}
	filter := bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}}
	users, err := r.find(ctx, filter, options.Find().SetProjection(userProjection))
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *MongoUserDirectory) ListExcept(ctx context.Context, id string) ([]domain.User, error) {
	filter := bson.D{}
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$ne", Value: oid}}}}
	}
	opts := options.Find().
		SetProjection(userProjection).
		SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *MongoUserDirectory) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]domain.User, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Store("find users", err)
	}
	defer cur.Close(ctx)
	out := []domain.User{}
	for cur.Next(ctx) {
		var d userDoc
		if err := cur.Decode(&d); err != nil {
			return nil, errs.Store("find users decode", err)
		}
		out = append(out, d.toDomain())
	}
	return out, errs.Store("find users cursor", cur.Err())
}
