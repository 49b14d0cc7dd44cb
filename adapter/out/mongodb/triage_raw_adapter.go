// Package mongodb implements MongoDB adapters for the application.
package mongodb

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionRawMessages = "raw_messages"

	// Bodies below this size are stored as-is.
	compressionThreshold = 1024
)

// RawMessageAdapter implements out.RawMessageRepository using MongoDB.
// Full inbound payloads stay out of the relational schema; only the
// normalized Message row lives in Postgres.
type RawMessageAdapter struct {
	collection *mongo.Collection
}

func NewRawMessageAdapter(db *mongo.Database) *RawMessageAdapter {
	return &RawMessageAdapter{collection: db.Collection(collectionRawMessages)}
}

// EnsureIndexes creates the collection indexes.
func (a *RawMessageAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "message_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "thread_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "provider_id", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type rawMessageDocument struct {
	MessageID  int64  `bson:"message_id"`
	ThreadID   int64  `bson:"thread_id"`
	ProviderID string `bson:"provider_id"`

	TextBody     []byte `bson:"text_body"`
	HTMLBody     []byte `bson:"html_body,omitempty"`
	IsCompressed bool   `bson:"is_compressed"`

	Headers     map[string]string    `bson:"headers,omitempty"`
	Attachments []attachmentDocument `bson:"attachments,omitempty"`

	OriginalSize int64     `bson:"original_size"`
	StoredAt     time.Time `bson:"stored_at"`
}

type attachmentDocument struct {
	ExternalID string `bson:"external_id"`
	Filename   string `bson:"filename"`
	MimeType   string `bson:"mime_type"`
	Size       int64  `bson:"size"`
}

func (a *RawMessageAdapter) Save(ctx context.Context, raw *domain.RawMessage) error {
	doc, err := toDocument(raw)
	if err != nil {
		return fmt.Errorf("failed to convert raw message: %w", err)
	}

	opts := options.Replace().SetUpsert(true)
	filter := bson.M{"message_id": raw.MessageID}

	if _, err := a.collection.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("failed to save raw message: %w", err)
	}
	return nil
}

func (a *RawMessageAdapter) GetByMessageID(ctx context.Context, messageID int64) (*domain.RawMessage, error) {
	var doc rawMessageDocument
	filter := bson.M{"message_id": messageID}

	if err := a.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get raw message: %w", err)
	}
	return toDomain(&doc)
}

func (a *RawMessageAdapter) DeleteByThread(ctx context.Context, threadID int64) (int64, error) {
	filter := bson.M{"thread_id": threadID}

	result, err := a.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete raw messages: %w", err)
	}
	return result.DeletedCount, nil
}

func toDocument(raw *domain.RawMessage) (*rawMessageDocument, error) {
	textBytes := []byte(raw.TextBody)
	htmlBytes := []byte(raw.HTMLBody)
	originalSize := int64(len(textBytes) + len(htmlBytes))

	isCompressed := false
	if originalSize > compressionThreshold {
		var err error
		if textBytes, err = compress(textBytes); err != nil {
			return nil, fmt.Errorf("failed to compress text body: %w", err)
		}
		if htmlBytes, err = compress(htmlBytes); err != nil {
			return nil, fmt.Errorf("failed to compress html body: %w", err)
		}
		isCompressed = true
	}

	attachments := make([]attachmentDocument, len(raw.Attachments))
	for i, att := range raw.Attachments {
		attachments[i] = attachmentDocument{
			ExternalID: att.ExternalID,
			Filename:   att.Filename,
			MimeType:   att.MimeType,
			Size:       att.Size,
		}
	}

	storedAt := raw.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	return &rawMessageDocument{
		MessageID:    raw.MessageID,
		ThreadID:     raw.ThreadID,
		ProviderID:   raw.ProviderID,
		TextBody:     textBytes,
		HTMLBody:     htmlBytes,
		IsCompressed: isCompressed,
		Headers:      raw.Headers,
		Attachments:  attachments,
		OriginalSize: originalSize,
		StoredAt:     storedAt,
	}, nil
}

func toDomain(doc *rawMessageDocument) (*domain.RawMessage, error) {
	textBytes := doc.TextBody
	htmlBytes := doc.HTMLBody

	if doc.IsCompressed {
		var err error
		if textBytes, err = decompress(doc.TextBody); err != nil {
			return nil, fmt.Errorf("failed to decompress text body: %w", err)
		}
		if htmlBytes, err = decompress(doc.HTMLBody); err != nil {
			return nil, fmt.Errorf("failed to decompress html body: %w", err)
		}
	}

	attachments := make([]*domain.AttachmentRef, len(doc.Attachments))
	for i, att := range doc.Attachments {
		attachments[i] = &domain.AttachmentRef{
			ExternalID: att.ExternalID,
			Filename:   att.Filename,
			MimeType:   att.MimeType,
			Size:       att.Size,
		}
	}

	return &domain.RawMessage{
		MessageID:   doc.MessageID,
		ThreadID:    doc.ThreadID,
		ProviderID:  doc.ProviderID,
		TextBody:    string(textBytes),
		HTMLBody:    string(htmlBytes),
		Headers:     doc.Headers,
		Attachments: attachments,
		StoredAt:    doc.StoredAt,
	}, nil
}

func compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}

var _ out.RawMessageRepository = (*RawMessageAdapter)(nil)
