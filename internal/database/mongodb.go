package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoCloseTimeout = 10 * time.Second

type MongoRelayRepository struct {
	client        *mongo.Client
	identities    *mongo.Collection
	pairs         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

type identityDocument struct {
	Handle       string    `bson:"_id"`
	FirstName    string    `bson:"firstName"`
	LastName     string    `bson:"lastName"`
	Email        string    `bson:"email,omitempty"`
	PasswordHash string    `bson:"passwordHash"`
	Status       string    `bson:"status"`
	CreatedAt    time.Time `bson:"createdAt"`
	UpdatedAt    time.Time `bson:"updatedAt"`
}

// pairDocument holds the single conversation id for an unordered pair; its
// _id is the uniqueness constraint that settles concurrent first contacts.
type pairDocument struct {
	Key            string    `bson:"_id"`
	ConversationId string    `bson:"conversationId"`
	CreatedAt      time.Time `bson:"createdAt"`
}

type conversationDocument struct {
	Key            string    `bson:"_id"`
	ConversationId string    `bson:"conversationId"`
	SenderId       string    `bson:"senderId"`
	RecipientId    string    `bson:"recipientId"`
	CreatedAt      time.Time `bson:"createdAt"`
}

type messageDocument struct {
	Id             string    `bson:"_id"`
	ConversationId string    `bson:"conversationId"`
	SenderId       string    `bson:"senderId"`
	RecipientId    string    `bson:"recipientId"`
	Content        string    `bson:"content"`
	SentAt         time.Time `bson:"sentAt"`
}

func NewMongoRelayRepository(ctx context.Context, uri, dbName string) (*MongoRelayRepository, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", err)
	}

	db := client.Database(dbName)
	m := &MongoRelayRepository{
		client:        client,
		identities:    db.Collection("identities"),
		pairs:         db.Collection("conversation_pairs"),
		conversations: db.Collection("conversation_records"),
		messages:      db.Collection("messages"),
	}

	if err := m.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	return m, nil
}

func (m *MongoRelayRepository) ensureIndexes(ctx context.Context) error {
	_, err := m.identities.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = m.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "conversationId", Value: 1},
			{Key: "sentAt", Value: 1},
			{Key: "_id", Value: 1},
		},
	})

	return err
}

func (m *MongoRelayRepository) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoRelayRepository) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()

	return m.client.Disconnect(ctx)
}

func translateMongoErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return ErrConflict
	default:
		return err
	}
}

func pairKey(a, b string) string {
	low, high := orderedPair(a, b)
	return low + "|" + high
}

func directedKey(senderId, recipientId string) string {
	return senderId + ">" + recipientId
}

func (d identityDocument) toIdentity() Identity {
	return Identity{
		Handle:       d.Handle,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Status:       Status(d.Status),
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func (d messageDocument) toMessage() Message {
	return Message{
		Id:             d.Id,
		ConversationId: d.ConversationId,
		SenderId:       d.SenderId,
		RecipientId:    d.RecipientId,
		Content:        d.Content,
		SentAt:         d.SentAt,
	}
}

func (m *MongoRelayRepository) CreateIdentity(ctx context.Context, params CreateIdentityParams) (Identity, error) {
	now := time.Now().UTC()
	doc := identityDocument{
		Handle:       params.Handle,
		FirstName:    params.FirstName,
		LastName:     params.LastName,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		Status:       string(StatusDisconnected),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := m.identities.InsertOne(ctx, doc); err != nil {
		return Identity{}, translateMongoErr(err)
	}

	return doc.toIdentity(), nil
}

func (m *MongoRelayRepository) GetIdentity(ctx context.Context, handle string) (Identity, error) {
	var doc identityDocument
	if err := m.identities.FindOne(ctx, bson.M{"_id": handle}).Decode(&doc); err != nil {
		return Identity{}, translateMongoErr(err)
	}

	return doc.toIdentity(), nil
}

func (m *MongoRelayRepository) UpsertPresence(ctx context.Context, handle string, status Status) (Identity, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":    string(status),
			"updatedAt": now,
		},
		"$setOnInsert": bson.M{
			"firstName":    "",
			"lastName":     "",
			"passwordHash": "",
			"createdAt":    now,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc identityDocument
	if err := m.identities.FindOneAndUpdate(ctx, bson.M{"_id": handle}, update, opts).Decode(&doc); err != nil {
		return Identity{}, translateMongoErr(err)
	}

	return doc.toIdentity(), nil
}

func (m *MongoRelayRepository) UpdatePresence(ctx context.Context, handle string, status Status) (Identity, error) {
	update := bson.M{
		"$set": bson.M{
			"status":    string(status),
			"updatedAt": time.Now().UTC(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc identityDocument
	if err := m.identities.FindOneAndUpdate(ctx, bson.M{"_id": handle}, update, opts).Decode(&doc); err != nil {
		return Identity{}, translateMongoErr(err)
	}

	return doc.toIdentity(), nil
}

func (m *MongoRelayRepository) ListIdentitiesByStatus(ctx context.Context, status Status) ([]Identity, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := m.identities.Find(ctx, bson.M{"status": string(status)}, opts)
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", err)
	}
	defer cursor.Close(ctx)

	identities := make([]Identity, 0)
	for cursor.Next(ctx) {
		var doc identityDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode identity: %w", err)
		}

		identities = append(identities, doc.toIdentity())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return identities, nil
}

func (m *MongoRelayRepository) ResetPresence(ctx context.Context) (int64, error) {
	res, err := m.identities.UpdateMany(
		ctx,
		bson.M{"status": string(StatusConnected)},
		bson.M{"$set": bson.M{
			"status":    string(StatusDisconnected),
			"updatedAt": time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, err
	}

	return res.ModifiedCount, nil
}

func (m *MongoRelayRepository) GetConversationId(ctx context.Context, senderId, recipientId string) (string, error) {
	var doc conversationDocument
	err := m.conversations.FindOne(ctx, bson.M{"_id": directedKey(senderId, recipientId)}).Decode(&doc)
	if err != nil {
		return "", translateMongoErr(err)
	}

	return doc.ConversationId, nil
}

func (m *MongoRelayRepository) CreateConversation(ctx context.Context, senderId, recipientId, conversationId string) (string, error) {
	now := time.Now().UTC()
	key := pairKey(senderId, recipientId)

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.M{"$setOnInsert": bson.M{
		"conversationId": conversationId,
		"createdAt":      now,
	}}

	var pair pairDocument
	err := m.pairs.FindOneAndUpdate(ctx, bson.M{"_id": key}, update, opts).Decode(&pair)
	if mongo.IsDuplicateKeyError(err) {
		// lost the upsert race; the winner's document is now visible
		err = m.pairs.FindOne(ctx, bson.M{"_id": key}).Decode(&pair)
	}
	if err != nil {
		return "", fmt.Errorf("claim pair: %w", translateMongoErr(err))
	}

	// Every creator writes the winning id, so the directed records agree
	// regardless of which writer lands last.
	models := []mongo.WriteModel{
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": directedKey(senderId, recipientId)}).
			SetUpdate(bson.M{
				"$set":         bson.M{"conversationId": pair.ConversationId, "senderId": senderId, "recipientId": recipientId},
				"$setOnInsert": bson.M{"createdAt": now},
			}).
			SetUpsert(true),
		mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": directedKey(recipientId, senderId)}).
			SetUpdate(bson.M{
				"$set":         bson.M{"conversationId": pair.ConversationId, "senderId": recipientId, "recipientId": senderId},
				"$setOnInsert": bson.M{"createdAt": now},
			}).
			SetUpsert(true),
	}

	if _, err := m.conversations.BulkWrite(ctx, models); err != nil && !mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("write conversation records: %w", err)
	}

	return pair.ConversationId, nil
}

func (m *MongoRelayRepository) CreateMessage(ctx context.Context, msg Message) error {
	_, err := m.messages.InsertOne(ctx, messageDocument{
		Id:             msg.Id,
		ConversationId: msg.ConversationId,
		SenderId:       msg.SenderId,
		RecipientId:    msg.RecipientId,
		Content:        msg.Content,
		SentAt:         msg.SentAt,
	})

	return translateMongoErr(err)
}

func (m *MongoRelayRepository) GetMessages(ctx context.Context, conversationId string) ([]Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "sentAt", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.messages.Find(ctx, bson.M{"conversationId": conversationId}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]Message, 0)
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}

		messages = append(messages, doc.toMessage())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return messages, nil
}
