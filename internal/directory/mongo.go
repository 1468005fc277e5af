package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"xixu.io/notifier/internal/notification"
	"xixu.io/notifier/internal/pkg/logger"
)

// Collection names written by the platform services.
const (
	UsersCollection        = "users"
	CertificatesCollection = "certificates"
	TrainingsCollection    = "trainings"
	MentorshipsCollection  = "mentorships"
)

// ExpiringCertificateWindow is how far ahead the weekly statistics look for
// expiring certificates.
const ExpiringCertificateWindow = 30 * 24 * time.Hour

type userDoc struct {
	notification.Recipient `bson:",inline"`
	Role                   string `bson:"role"`
	Department             string `bson:"department"`
	IsActive               bool   `bson:"isActive"`
}

type certificateDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	Name       string             `bson:"name"`
	Issuer     string             `bson:"issuer"`
	Status     string             `bson:"status"`
	ExpiryDate time.Time          `bson:"expiryDate"`
	User       primitive.ObjectID `bson:"user"`
}

type trainingDoc struct {
	ID           primitive.ObjectID `bson:"_id"`
	Title        string             `bson:"title"`
	Status       string             `bson:"status"`
	Participants []participantDoc   `bson:"participants"`
	Schedule     struct {
		StartDate time.Time         `bson:"startDate"`
		EndDate   time.Time         `bson:"endDate"`
		Sessions  []TrainingSession `bson:"sessions"`
	} `bson:"schedule"`
}

type participantDoc struct {
	User           primitive.ObjectID `bson:"user"`
	Status         string             `bson:"status"`
	CompletionDate *time.Time         `bson:"completionDate,omitempty"`
	Feedback       *feedbackDoc       `bson:"feedback,omitempty"`
}

type feedbackDoc struct {
	Rating      float64    `bson:"rating"`
	SubmittedAt *time.Time `bson:"submittedAt,omitempty"`
}

type mentorshipDoc struct {
	ID       primitive.ObjectID  `bson:"_id"`
	Mentor   primitive.ObjectID  `bson:"mentor"`
	Mentee   primitive.ObjectID  `bson:"mentee"`
	Status   string              `bson:"status"`
	Sessions []MentorshipSession `bson:"sessions"`
}

// MongoDirectory implements the directory queries on a platform database.
type MongoDirectory struct {
	users        *mongo.Collection
	certificates *mongo.Collection
	trainings    *mongo.Collection
	mentorships  *mongo.Collection
	now          func() time.Time
}

// NewMongoDirectory creates a directory over db.
func NewMongoDirectory(db *mongo.Database) *MongoDirectory {
	return &MongoDirectory{
		users:        db.Collection(UsersCollection),
		certificates: db.Collection(CertificatesCollection),
		trainings:    db.Collection(TrainingsCollection),
		mentorships:  db.Collection(MentorshipsCollection),
		now:          time.Now,
	}
}

// Connect opens a client and pings the primary.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetServerSelectionTimeout(timeout).SetConnectTimeout(timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// FindRecipient loads one user by hex ObjectID.
func (d *MongoDirectory) FindRecipient(ctx context.Context, id string) (notification.Recipient, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return notification.Recipient{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var u userDoc
	if err := d.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return notification.Recipient{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return notification.Recipient{}, fmt.Errorf("find user %s: %w", id, err)
	}
	return u.Recipient, nil
}

// ExpiringCertificates returns active certificates expiring within [from, to].
func (d *MongoDirectory) ExpiringCertificates(ctx context.Context, from, to time.Time) ([]Certificate, error) {
	docs, err := findAll[certificateDoc](ctx, d.certificates, bson.M{
		"status":     StatusActive,
		"expiryDate": bson.M{"$gte": from, "$lte": to},
	}, options.Find().SetSort(bson.D{{Key: "expiryDate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find expiring certificates: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, len(docs))
	for _, c := range docs {
		ids = append(ids, c.User)
	}
	users, err := d.loadUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Certificate, 0, len(docs))
	for _, c := range docs {
		holder, ok := users[c.User]
		if !ok {
			logger.Warn("certificate holder not found",
				zap.String("certificate", c.ID.Hex()),
				zap.String("user", c.User.Hex()),
			)
			continue
		}
		out = append(out, Certificate{
			ID:         c.ID.Hex(),
			Name:       c.Name,
			Issuer:     c.Issuer,
			ExpiryDate: c.ExpiryDate,
			Holder:     holder,
		})
	}
	return out, nil
}

// UpcomingTrainings returns active trainings starting within [from, to].
func (d *MongoDirectory) UpcomingTrainings(ctx context.Context, from, to time.Time) ([]Training, error) {
	docs, err := findAll[trainingDoc](ctx, d.trainings, bson.M{
		"status":             StatusActive,
		"schedule.startDate": bson.M{"$gte": from, "$lte": to},
	})
	if err != nil {
		return nil, fmt.Errorf("find upcoming trainings: %w", err)
	}

	var ids []primitive.ObjectID
	for _, t := range docs {
		for _, p := range t.Participants {
			ids = append(ids, p.User)
		}
	}
	users, err := d.loadUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Training, 0, len(docs))
	for _, t := range docs {
		tr := Training{
			ID:        t.ID.Hex(),
			Title:     t.Title,
			StartDate: t.Schedule.StartDate,
			Sessions:  t.Schedule.Sessions,
		}
		for _, p := range t.Participants {
			if u, ok := users[p.User]; ok {
				tr.Participants = append(tr.Participants, u)
			}
		}
		out = append(out, tr)
	}
	return out, nil
}

// UpcomingMentorships returns active mentorships with a session in [from, to].
func (d *MongoDirectory) UpcomingMentorships(ctx context.Context, from, to time.Time) ([]Mentorship, error) {
	docs, err := findAll[mentorshipDoc](ctx, d.mentorships, bson.M{
		"status": StatusActive,
		"sessions": bson.M{"$elemMatch": bson.M{
			"date": bson.M{"$gte": from, "$lte": to},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("find upcoming mentorships: %w", err)
	}

	ids := make([]primitive.ObjectID, 0, 2*len(docs))
	for _, m := range docs {
		ids = append(ids, m.Mentor, m.Mentee)
	}
	users, err := d.loadUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Mentorship, 0, len(docs))
	for _, m := range docs {
		mentor, okMentor := users[m.Mentor]
		mentee, okMentee := users[m.Mentee]
		if !okMentor || !okMentee {
			logger.Warn("mentorship party not found", zap.String("mentorship", m.ID.Hex()))
			continue
		}
		out = append(out, Mentorship{
			ID:       m.ID.Hex(),
			Mentor:   mentor,
			Mentee:   mentee,
			Sessions: m.Sessions,
		})
	}
	return out, nil
}

// ActiveManagers returns every active user with the manager role.
func (d *MongoDirectory) ActiveManagers(ctx context.Context) ([]Manager, error) {
	docs, err := findAll[userDoc](ctx, d.users, bson.M{"role": RoleManager, "isActive": true})
	if err != nil {
		return nil, fmt.Errorf("find managers: %w", err)
	}
	out := make([]Manager, 0, len(docs))
	for _, u := range docs {
		out = append(out, Manager{Recipient: u.Recipient, Department: u.Department})
	}
	return out, nil
}

// DepartmentStats summarizes the department's training activity since the
// given time.
func (d *MongoDirectory) DepartmentStats(ctx context.Context, department string, since time.Time) (DepartmentStats, error) {
	members, err := findAll[userDoc](ctx, d.users, bson.M{"department": department, "isActive": true},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return DepartmentStats{}, fmt.Errorf("find department members: %w", err)
	}
	memberIDs := make([]primitive.ObjectID, 0, len(members))
	memberSet := make(map[primitive.ObjectID]struct{}, len(members))
	for _, m := range members {
		oid, err := primitive.ObjectIDFromHex(m.ID)
		if err != nil {
			continue
		}
		memberIDs = append(memberIDs, oid)
		memberSet[oid] = struct{}{}
	}
	if len(memberIDs) == 0 {
		return DepartmentStats{Department: department}, nil
	}

	trainings, err := findAll[trainingDoc](ctx, d.trainings, bson.M{
		"participants.user": bson.M{"$in": memberIDs},
		"schedule.endDate":  bson.M{"$gte": since},
	})
	if err != nil {
		return DepartmentStats{}, fmt.Errorf("find department trainings: %w", err)
	}

	now := d.now()
	expiring, err := d.certificates.CountDocuments(ctx, bson.M{
		"user":       bson.M{"$in": memberIDs},
		"status":     StatusActive,
		"expiryDate": bson.M{"$gte": now, "$lte": now.Add(ExpiringCertificateWindow)},
	})
	if err != nil {
		return DepartmentStats{}, fmt.Errorf("count expiring certificates: %w", err)
	}

	stats := computeStats(department, memberSet, trainings, since)
	stats.ExpiringCertificates = int(expiring)
	return stats, nil
}

// loadUsers resolves user references in one round trip.
func (d *MongoDirectory) loadUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]notification.Recipient, error) {
	out := make(map[primitive.ObjectID]notification.Recipient, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	docs, err := findAll[userDoc](ctx, d.users, bson.M{"_id": bson.M{"$in": uniqueIDs(ids)}})
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	for _, u := range docs {
		oid, err := primitive.ObjectIDFromHex(u.ID)
		if err != nil {
			continue
		}
		out[oid] = u.Recipient
	}
	return out, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []T
	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}
