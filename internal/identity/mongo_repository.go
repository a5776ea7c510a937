package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type userDocument struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Email         string    `bson:"email"`
	Phone         string    `bson:"phone"`
	Country       string    `bson:"country"`
	Password      string    `bson:"password"`
	PIN           string    `bson:"pin,omitempty"`
	Status        string    `bson:"status"`
	Plan          string    `bson:"plan,omitempty"`
	ApprovedSteps []string  `bson:"approvedSteps"`
	Version       int       `bson:"version"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

// MongoRepository stores one document per user in a MongoDB collection.
type MongoRepository struct {
	users *mongo.Collection
}

// NewMongoRepository builds a repository on the users collection of db.
func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{users: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Create inserts a new user document.
func (r *MongoRepository) Create(ctx context.Context, user User) error {
	user.Email = NormalizeEmail(user.Email)
	_, err := r.users.InsertOne(ctx, toDocument(user))
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateEmail
	}
	return err
}

// FindByID fetches a user by identifier.
func (r *MongoRepository) FindByID(ctx context.Context, id string) (User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// FindByEmail fetches a user by normalized email.
func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, bson.M{"email": NormalizeEmail(email)})
}

// List returns every user ordered by registration time.
func (r *MongoRepository) List(ctx context.Context) ([]User, error) {
	return r.find(ctx, bson.M{})
}

// SearchByEmail returns users whose email equals the normalized input.
func (r *MongoRepository) SearchByEmail(ctx context.Context, email string) ([]User, error) {
	return r.find(ctx, bson.M{"email": NormalizeEmail(email)})
}

// Update replaces the mutable fields when the stored version still matches.
func (r *MongoRepository) Update(ctx context.Context, user User) (User, error) {
	updated := cloneUser(user)
	updated.Version = user.Version + 1
	updated.UpdatedAt = time.Now().UTC()

	res, err := r.users.UpdateOne(ctx,
		bson.M{"_id": user.ID, "version": user.Version},
		bson.M{"$set": bson.M{
			"password":      updated.PasswordHash,
			"pin":           updated.PIN,
			"status":        string(updated.Status),
			"plan":          updated.Plan,
			"approvedSteps": stepsToStrings(updated.ApprovedSteps),
			"version":       updated.Version,
			"updatedAt":     updated.UpdatedAt,
		}},
	)
	if err != nil {
		return User{}, err
	}
	if res.MatchedCount == 0 {
		if _, err := r.FindByID(ctx, user.ID); err != nil {
			return User{}, err
		}
		return User{}, ErrVersionConflict
	}
	return updated, nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (User, error) {
	var doc userDocument
	if err := r.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return fromDocument(doc)
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M) ([]User, error) {
	cur, err := r.users.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	users := make([]User, 0, len(docs))
	for _, doc := range docs {
		user, err := fromDocument(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func toDocument(u User) userDocument {
	return userDocument{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Country:       u.Country,
		Password:      u.PasswordHash,
		PIN:           u.PIN,
		Status:        string(u.Status),
		Plan:          u.Plan,
		ApprovedSteps: stepsToStrings(u.ApprovedSteps),
		Version:       u.Version,
		CreatedAt:     u.CreatedAt.UTC(),
		UpdatedAt:     u.UpdatedAt.UTC(),
	}
}

func fromDocument(d userDocument) (User, error) {
	status := StatusStep1
	if d.Status != "" {
		parsed, err := ParseStatus(d.Status)
		if err != nil {
			return User{}, fmt.Errorf("user %s: %w", d.ID, err)
		}
		status = parsed
	}
	return User{
		ID:            d.ID,
		Name:          d.Name,
		Email:         d.Email,
		Phone:         d.Phone,
		Country:       d.Country,
		PasswordHash:  d.Password,
		PIN:           d.PIN,
		Status:        status,
		Plan:          d.Plan,
		ApprovedSteps: stringsToSteps(d.ApprovedSteps),
		Version:       d.Version,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}, nil
}
