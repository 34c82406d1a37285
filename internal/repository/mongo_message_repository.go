package repository

import (
	"context"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/spec-kit/marketplace-service/internal/domain"
)

const messagesCollection = "messages"

type messageDocument struct {
	ID         string    `bson:"_id"`
	SenderID   string    `bson:"sender_id"`
	ReceiverID string    `bson:"receiver_id"`
	SentBy     string    `bson:"sent_by"`
	Body       string    `bson:"body"`
	CreatedAt  time.Time `bson:"created_at"`
}

type mongoMessageRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoMessageRepository stores messages in the "messages" collection of db.
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &mongoMessageRepository{collection: db.Collection(messagesCollection), now: time.Now}
}

func (r *mongoMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.now().UTC()
	}
	doc := messageDocument{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		SentBy:     string(msg.SentBy),
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &DuplicateError{Constraint: ConstraintMessagePrimaryKey, Err: err}
		}
		return err
	}
	return nil
}

func (r *mongoMessageRepository) ListBetween(ctx context.Context, a, b string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	result := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		result = append(result, domain.Message{
			ID:         doc.ID,
			SenderID:   doc.SenderID,
			ReceiverID: doc.ReceiverID,
			SentBy:     domain.SentBy(doc.SentBy),
			Body:       doc.Body,
			CreatedAt:  doc.CreatedAt,
		})
	}
	slices.Reverse(result)
	return result, nil
}
