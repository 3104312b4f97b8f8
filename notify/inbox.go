package notify

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gigflow/apperr"
	"gigflow/models"
	"gigflow/mq"
	"gigflow/utils"
)

// Inbox stores notifications in Mongo and mirrors each one on the inbox
// channel for connected clients.
type Inbox struct {
	coll *mongo.Collection
	pub  mq.Publisher
}

func NewInbox(coll *mongo.Collection, pub mq.Publisher) *Inbox {
	return &Inbox{coll: coll, pub: pub}
}

func (in *Inbox) Send(ctx context.Context, n models.Notification) error {
	if n.ReceiverID == "" {
		return apperr.New(apperr.CodeInvalid, "notification without receiver")
	}
	n.ID = utils.GetUUID()
	n.CreatedAt = time.Now()
	n.Read = false
	if _, err := in.coll.InsertOne(ctx, n); err != nil {
		return apperr.Wrap(apperr.CodeTransient, "store notification", err)
	}
	mq.Emit(ctx, in.pub, mq.InboxChannel, n)
	return nil
}

func (in *Inbox) List(ctx context.Context, userID string, limit int64) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	out, err := utils.FindAndDecode[models.Notification](ctx, in.coll, bson.M{"receiverId": userID}, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeTransient, "list notifications", err)
	}
	return out, nil
}

func (in *Inbox) MarkRead(ctx context.Context, userID, id string) error {
	res, err := in.coll.UpdateOne(ctx, bson.M{"_id": id, "receiverId": userID}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return apperr.Wrap(apperr.CodeTransient, "mark read", err)
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.CodeNotFound, "notification not found")
	}
	return nil
}
