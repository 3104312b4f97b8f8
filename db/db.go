package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	JobsCollection          *mongo.Collection
	ApplicantsCollection    *mongo.Collection
	InvitationsCollection   *mongo.Collection
	SubmissionsCollection   *mongo.Collection
	RatingsCollection       *mongo.Collection
	AccountsCollection      *mongo.Collection
	TransactionCollection   *mongo.Collection
	JournalCollection       *mongo.Collection
	NotificationsCollection *mongo.Collection
	ChatsCollection         *mongo.Collection
	IdempotencyCollection   *mongo.Collection
	Client                  *mongo.Client
)

// Init connects to MongoDB and binds the collection handles.
func Init(ctx context.Context, uri, database string) error {
	var err error
	Client, err = mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	if err := Client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	d := Client.Database(database)
	JobsCollection = d.Collection("jobs")
	ApplicantsCollection = d.Collection("applicants")
	InvitationsCollection = d.Collection("invitations")
	SubmissionsCollection = d.Collection("submissions")
	RatingsCollection = d.Collection("ratings")
	AccountsCollection = d.Collection("accounts")
	TransactionCollection = d.Collection("transactions")
	JournalCollection = d.Collection("journal")
	NotificationsCollection = d.Collection("notifications")
	ChatsCollection = d.Collection("chats")
	IdempotencyCollection = d.Collection("idempotency")

	log.Info().Str("db", database).Msg("mongo connected")
	return nil
}

func Close(ctx context.Context) error {
	if Client == nil {
		return nil
	}
	return Client.Disconnect(ctx)
}

func unique(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true).SetName(name)}
}

func plain(name string, keys bson.D) mongo.IndexModel {
	return mongo.IndexModel{Keys: keys, Options: options.Index().SetName(name)}
}

// EnsureIndexes creates the indexes the stores rely on. The unique ones back
// the one-applicant, one-invitation and one-rating per (job, user) rules.
func EnsureIndexes(ctx context.Context) error {
	plan := map[*mongo.Collection][]mongo.IndexModel{
		JobsCollection: {
			unique("unique_jobid", bson.D{{Key: "jobid", Value: 1}}),
			plain("owner", bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}}),
			plain("member_status", bson.D{{Key: "accepted", Value: 1}, {Key: "status", Value: 1}}),
			plain("tags_status", bson.D{{Key: "tags", Value: 1}, {Key: "status", Value: 1}}),
		},
		ApplicantsCollection: {
			unique("unique_job_user", bson.D{{Key: "jobid", Value: 1}, {Key: "userid", Value: 1}}),
			plain("user", bson.D{{Key: "userid", Value: 1}}),
		},
		InvitationsCollection: {
			unique("unique_invitationid", bson.D{{Key: "invitationid", Value: 1}}),
			unique("unique_job_invitee", bson.D{{Key: "jobid", Value: 1}, {Key: "inviteeId", Value: 1}}),
			plain("invitee", bson.D{{Key: "inviteeId", Value: 1}, {Key: "createdAt", Value: -1}}),
		},
		SubmissionsCollection: {
			unique("unique_submissionid", bson.D{{Key: "submissionid", Value: 1}}),
			plain("job_status", bson.D{{Key: "jobid", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: -1}}),
			plain("user", bson.D{{Key: "userid", Value: 1}, {Key: "createdAt", Value: -1}}),
		},
		RatingsCollection: {
			unique("unique_job_user", bson.D{{Key: "jobid", Value: 1}, {Key: "userid", Value: 1}}),
			plain("user", bson.D{{Key: "userid", Value: 1}}),
		},
		AccountsCollection: {
			unique("unique_userid", bson.D{{Key: "userid", Value: 1}}),
		},
		TransactionCollection: {
			{
				Keys:    bson.D{{Key: "external_ref", Value: 1}},
				Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_external_ref"),
			},
			plain("from", bson.D{{Key: "from_account", Value: 1}, {Key: "created_at", Value: -1}}),
			plain("to", bson.D{{Key: "to_account", Value: 1}, {Key: "created_at", Value: -1}}),
		},
		JournalCollection: {
			plain("txn", bson.D{{Key: "txn_id", Value: 1}}),
		},
		NotificationsCollection: {
			plain("receiver", bson.D{{Key: "receiverId", Value: 1}, {Key: "createdAt", Value: -1}}),
		},
		ChatsCollection: {
			unique("unique_key", bson.D{{Key: "key", Value: 1}}),
			plain("users", bson.D{{Key: "users", Value: 1}, {Key: "updatedAt", Value: -1}}),
		},
		IdempotencyCollection: {
			unique("unique_key", bson.D{{Key: "key", Value: 1}}),
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("ttl_expires_at"),
			},
		},
	}
	for coll, idxs := range plan {
		if _, err := coll.Indexes().CreateMany(ctx, idxs); err != nil {
			return fmt.Errorf("indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

// IsDuplicateKey detects duplicate key errors from Mongo writes.
func IsDuplicateKey(err error) bool {
	return mongo.IsDuplicateKeyError(err)
}
