package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"filevault/internal/domain/models"
	"filevault/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type Storage struct {
	client   *mongo.Client
	database *mongo.Database
	users    *mongo.Collection
	sessions *mongo.Collection
	files    *mongo.Collection
	counters *mongo.Collection
}

type userDoc struct {
	ID        int64     `bson:"_id"`
	LoginID   string    `bson:"login_id"`
	PassHash  []byte    `bson:"pass_hash"`
	CreatedAt time.Time `bson:"created_at"`
}

type sessionDoc struct {
	ID        string    `bson:"_id"`
	Token     string    `bson:"token"`
	UserID    int64     `bson:"user_id"`
	CreatedAt time.Time `bson:"created_at"`
}

type fileDoc struct {
	ID         int64     `bson:"_id"`
	Name       string    `bson:"name"`
	Extension  string    `bson:"extension"`
	MimeType   string    `bson:"mime_type"`
	Size       int64     `bson:"size"`
	Path       string    `bson:"path"`
	UserID     int64     `bson:"user_id"`
	UploadedAt time.Time `bson:"uploaded_at"`
}

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// New creates a new MongoDB storage instance and sets up indexes.
// sessionTTL bounds how long a session document outlives its creation; the
// TTL index is a safety net, rotation and logout still delete eagerly.
func New(ctx context.Context, uri, database string, sessionTTL time.Duration) (*Storage, error) {
	const op = "storage.mongodb.New"

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}

	db := client.Database(database)
	s := &Storage{
		client:   client,
		database: db,
		users:    db.Collection("users"),
		sessions: db.Collection("sessions"),
		files:    db.Collection("files"),
		counters: db.Collection("counters"),
	}

	if err := s.ensureIndexes(ctx, sessionTTL); err != nil {
		return nil, fmt.Errorf("%s: indexes: %w", op, err)
	}

	return s, nil
}

func (s *Storage) ensureIndexes(ctx context.Context, sessionTTL time.Duration) error {
	// users.login_id unique
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "login_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users.login_id index: %w", err)
	}

	// sessions.token unique
	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "token", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("sessions.token index: %w", err)
	}

	// sessions.created_at TTL index (auto-delete sessions past the refresh lifetime)
	ttlSeconds := int32(sessionTTL / time.Second)
	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttlSeconds),
	})
	if err != nil {
		return fmt.Errorf("sessions.created_at TTL index: %w", err)
	}

	// files.user_id for the list query
	_, err = s.files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "uploaded_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("files.user_id index: %w", err)
	}

	return nil
}

// Close disconnects from MongoDB.
func (s *Storage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// nextID atomically increments and returns the next ID for a given collection.
func (s *Storage) nextID(ctx context.Context, collectionName string) (int64, error) {
	filter := bson.D{{Key: "_id", Value: collectionName}}
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: "value", Value: int64(1)}}}}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter counterDoc
	err := s.counters.FindOneAndUpdate(ctx, filter, update, opts).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Value, nil
}

// SaveUser saves a new user and returns the generated user ID.
func (s *Storage) SaveUser(ctx context.Context, loginID string, passHash []byte) (int64, error) {
	const op = "storage.mongodb.SaveUser"

	id, err := s.nextID(ctx, "users")
	if err != nil {
		return 0, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := userDoc{
		ID:        id,
		LoginID:   loginID,
		PassHash:  passHash,
		CreatedAt: time.Now(),
	}

	_, err = s.users.InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// User retrieves a user by login id.
func (s *Storage) User(ctx context.Context, loginID string) (*models.User, error) {
	const op = "storage.mongodb.User"

	var doc userDoc
	err := s.users.FindOne(ctx, bson.D{{Key: "login_id", Value: loginID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return userFromDoc(&doc), nil
}

// UserByID retrieves a user by ID.
func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.mongodb.UserByID"

	var doc userDoc
	err := s.users.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return userFromDoc(&doc), nil
}

// SaveSession stores a new session document.
func (s *Storage) SaveSession(ctx context.Context, id, refreshToken string, userID int64) (*models.Session, error) {
	const op = "storage.mongodb.SaveSession"

	doc := sessionDoc{
		ID:        id,
		Token:     refreshToken,
		UserID:    userID,
		CreatedAt: time.Now(),
	}

	_, err := s.sessions.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessionFromDoc(&doc), nil
}

// SessionByToken retrieves a session by its refresh token.
func (s *Storage) SessionByToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	const op = "storage.mongodb.SessionByToken"

	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.D{{Key: "token", Value: refreshToken}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessionFromDoc(&doc), nil
}

// SessionByID retrieves a session by its id.
func (s *Storage) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	const op = "storage.mongodb.SessionByID"

	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sessionFromDoc(&doc), nil
}

// DeleteSessionByToken removes the session holding the token and reports the
// deleted count. DeleteOne is atomic; of concurrent callers presenting the
// same token exactly one observes count 1.
func (s *Storage) DeleteSessionByToken(ctx context.Context, refreshToken string) (int64, error) {
	const op = "storage.mongodb.DeleteSessionByToken"

	result, err := s.sessions.DeleteOne(ctx, bson.D{{Key: "token", Value: refreshToken}})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return result.DeletedCount, nil
}

// SaveFile stores file metadata and returns it with the generated id.
func (s *Storage) SaveFile(ctx context.Context, file *models.File) (*models.File, error) {
	const op = "storage.mongodb.SaveFile"

	id, err := s.nextID(ctx, "files")
	if err != nil {
		return nil, fmt.Errorf("%s: nextID: %w", op, err)
	}

	doc := fileDoc{
		ID:         id,
		Name:       file.Name,
		Extension:  file.Extension,
		MimeType:   file.MimeType,
		Size:       file.Size,
		Path:       file.Path,
		UserID:     file.UserID,
		UploadedAt: time.Now(),
	}

	_, err = s.files.InsertOne(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return fileFromDoc(&doc), nil
}

// FileByID retrieves a file owned by the given user.
func (s *Storage) FileByID(ctx context.Context, fileID, userID int64) (*models.File, error) {
	const op = "storage.mongodb.FileByID"

	var doc fileDoc
	err := s.files.FindOne(ctx, bson.D{
		{Key: "_id", Value: fileID},
		{Key: "user_id", Value: userID},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return fileFromDoc(&doc), nil
}

// Files returns one page of a user's files, newest first, plus the total.
func (s *Storage) Files(ctx context.Context, userID int64, offset, limit int) ([]*models.File, int64, error) {
	const op = "storage.mongodb.Files"

	filter := bson.D{{Key: "user_id", Value: userID}}

	total, err := s.files.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "uploaded_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := s.files.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	var files []*models.File
	for cursor.Next(ctx) {
		var doc fileDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, 0, fmt.Errorf("%s: decode: %w", op, err)
		}
		files = append(files, fileFromDoc(&doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	return files, total, nil
}

// UpdateFile replaces a file's metadata in place.
func (s *Storage) UpdateFile(ctx context.Context, file *models.File) (*models.File, error) {
	const op = "storage.mongodb.UpdateFile"

	result, err := s.files.UpdateOne(ctx,
		bson.D{
			{Key: "_id", Value: file.ID},
			{Key: "user_id", Value: file.UserID},
		},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: file.Name},
			{Key: "extension", Value: file.Extension},
			{Key: "mime_type", Value: file.MimeType},
			{Key: "size", Value: file.Size},
			{Key: "path", Value: file.Path},
		}}},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if result.MatchedCount == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}

	return s.FileByID(ctx, file.ID, file.UserID)
}

// DeleteFile removes a file owned by the given user.
func (s *Storage) DeleteFile(ctx context.Context, fileID, userID int64) error {
	const op = "storage.mongodb.DeleteFile"

	result, err := s.files.DeleteOne(ctx, bson.D{
		{Key: "_id", Value: fileID},
		{Key: "user_id", Value: userID},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrFileNotFound)
	}

	return nil
}

func userFromDoc(doc *userDoc) *models.User {
	return &models.User{
		ID:        doc.ID,
		LoginID:   doc.LoginID,
		PassHash:  doc.PassHash,
		CreatedAt: doc.CreatedAt,
	}
}

func sessionFromDoc(doc *sessionDoc) *models.Session {
	return &models.Session{
		ID:           doc.ID,
		RefreshToken: doc.Token,
		UserID:       doc.UserID,
		CreatedAt:    doc.CreatedAt,
	}
}

func fileFromDoc(doc *fileDoc) *models.File {
	return &models.File{
		ID:         doc.ID,
		Name:       doc.Name,
		Extension:  doc.Extension,
		MimeType:   doc.MimeType,
		Size:       doc.Size,
		Path:       doc.Path,
		UserID:     doc.UserID,
		UploadedAt: doc.UploadedAt,
	}
}

// isDuplicateKeyError checks if the error is a MongoDB duplicate key error (code 11000).
func isDuplicateKeyError(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
