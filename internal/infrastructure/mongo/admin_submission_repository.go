package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	adminapp "github.com/sngm3741/holiday-lights/api/internal/admin/application"
	admindomain "github.com/sngm3741/holiday-lights/api/internal/admin/domain"
	"github.com/sngm3741/holiday-lights/api/internal/apperror"
)

// AdminSubmissionRepository implements adminapp.SubmissionRepository.
// 状態を変える書き込みはすべて現在の status を条件に含める。
type AdminSubmissionRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

func NewAdminSubmissionRepository(db *mongo.Database, collectionName string) *AdminSubmissionRepository {
	return &AdminSubmissionRepository{
		collection: db.Collection(collectionName),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *AdminSubmissionRepository) Find(ctx context.Context, filter adminapp.SubmissionFilter) ([]admindomain.Submission, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Type != "" {
		query["type"] = string(filter.Type)
	}
	// 審査待ちは古い順、それ以外は新しい順。
	order := -1
	if filter.Status == admindomain.SubmissionPending {
		order = 1
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: order}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	var docs []SubmissionDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		cursor, err := r.collection.Find(ctx, query, opts)
		if err != nil {
			return err
		}
		docs = nil
		return cursor.All(ctx, &docs)
	})
	if err != nil {
		return nil, err
	}
	result := make([]admindomain.Submission, 0, len(docs))
	for _, doc := range docs {
		result = append(result, mapAdminSubmissionDocument(doc))
	}
	return result, nil
}

func (r *AdminSubmissionRepository) FindByID(ctx context.Context, id string) (*admindomain.Submission, error) {
	var doc SubmissionDocument
	err := withReadRetry(ctx, func(ctx context.Context) error {
		return r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	})
	if err != nil {
		return nil, mapFindErr(err)
	}
	sub := mapAdminSubmissionDocument(doc)
	return &sub, nil
}

// Claim は FindOneAndUpdate で審査権を取得し、更新後のドキュメントを返す。
// 有効な claim があれば同じ審査者でも取得できない。
func (r *AdminSubmissionRepository) Claim(ctx context.Context, id string, claim admindomain.ReviewClaim) (*admindomain.Submission, error) {
	filter := bson.M{
		"_id":    id,
		"status": string(admindomain.SubmissionPending),
		"$or": []bson.M{
			{"reviewClaim": nil},
			{"reviewClaim.expiresAt": bson.M{"$lte": r.now()}},
		},
	}
	update := bson.M{"$set": bson.M{
		"reviewClaim": ReviewClaimDocument{By: claim.By, Token: claim.Token, ExpiresAt: claim.ExpiresAt},
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc SubmissionDocument
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.ErrPreconditionFailed
	}
	if err != nil {
		return nil, err
	}
	sub := mapAdminSubmissionDocument(doc)
	return &sub, nil
}

// Renew は token の claim が期限内の場合だけ expiresAt を延長する。
func (r *AdminSubmissionRepository) Renew(ctx context.Context, id, token string, expiresAt time.Time) error {
	filter := bson.M{
		"_id":                   id,
		"status":                string(admindomain.SubmissionPending),
		"reviewClaim.token":     token,
		"reviewClaim.expiresAt": bson.M{"$gt": r.now()},
	}
	update := bson.M{"$set": bson.M{"reviewClaim.expiresAt": expiresAt}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrPreconditionFailed
	}
	return nil
}

// Release は token の claim を外す。一致しなければ何もしない。
func (r *AdminSubmissionRepository) Release(ctx context.Context, id, token string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "reviewClaim.token": token},
		bson.M{"$unset": bson.M{"reviewClaim": ""}},
	)
	return err
}

// Finalize は pending かつ token の claim を保持している場合だけ終端状態を書き込み、審査権を解放する。
func (r *AdminSubmissionRepository) Finalize(ctx context.Context, sub *admindomain.Submission, token string) error {
	filter := bson.M{
		"_id":               sub.ID,
		"status":            string(admindomain.SubmissionPending),
		"reviewClaim.token": token,
	}
	set := bson.M{
		"status":     string(sub.Status),
		"reviewedBy": sub.ReviewedBy,
		"reviewedAt": sub.ReviewedAt,
		"updatedAt":  sub.UpdatedAt,
	}
	if sub.RejectionReason != "" {
		set["rejectionReason"] = sub.RejectionReason
	}
	if sub.LocationID != "" {
		set["locationId"] = sub.LocationID
	}
	update := bson.M{
		"$set":   set,
		"$unset": bson.M{"reviewClaim": ""},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrPreconditionFailed
	}
	return nil
}

// UpdatePending は審査中でない pending の投稿へ編集内容を書き込む。version で解析結果との競合を検出する。
func (r *AdminSubmissionRepository) UpdatePending(ctx context.Context, sub *admindomain.Submission) error {
	filter := bson.M{
		"_id":     sub.ID,
		"version": sub.Version,
		"status":  string(admindomain.SubmissionPending),
		"$or": []bson.M{
			{"reviewClaim": nil},
			{"reviewClaim.expiresAt": bson.M{"$lte": r.now()}},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"description":    sub.Description,
			"aiDescription":  sub.AIDescription,
			"detectedTags":   sub.DetectedTags,
			"displayQuality": string(sub.DisplayQuality),
			"updatedAt":      sub.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrPreconditionFailed
	}
	return nil
}

// SaveAnalysis は読み取り時の version を条件に解析結果を書き込む。
func (r *AdminSubmissionRepository) SaveAnalysis(ctx context.Context, sub *admindomain.Submission) error {
	filter := bson.M{
		"_id":     sub.ID,
		"version": sub.Version,
		"status":  string(admindomain.SubmissionPending),
	}
	update := bson.M{
		"$set": bson.M{
			"detectedTags":     sub.DetectedTags,
			"aiDescription":    sub.AIDescription,
			"displayQuality":   string(sub.DisplayQuality),
			"flaggedForReview": sub.FlaggedForReview,
			"updatedAt":        sub.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperror.ErrPreconditionFailed
	}
	return nil
}

func mapAdminSubmissionDocument(doc SubmissionDocument) admindomain.Submission {
	sub := admindomain.Submission{
		ID:               doc.ID,
		Type:             admindomain.SubmissionType(doc.Type),
		Status:           admindomain.SubmissionStatus(doc.Status),
		Address:          doc.Address,
		Coordinates:      admindomain.Coordinates{Lat: doc.Coordinates.Lat, Lng: doc.Coordinates.Lng},
		Description:      doc.Description,
		Photos:           append([]string{}, doc.Photos...),
		TargetLocationID: doc.TargetLocationID,
		SubmittedBy:      doc.SubmittedBy,
		SubmittedByName:  doc.SubmittedByName,
		DetectedTags:     append([]string{}, doc.DetectedTags...),
		AIDescription:    doc.AIDescription,
		DisplayQuality:   admindomain.DisplayQuality(doc.DisplayQuality),
		FlaggedForReview: doc.FlaggedForReview,
		Version:          doc.Version,
		ReviewedBy:       doc.ReviewedBy,
		ReviewedAt:       doc.ReviewedAt,
		RejectionReason:  doc.RejectionReason,
		LocationID:       doc.LocationID,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	if doc.ReviewClaim != nil {
		sub.ReviewClaim = &admindomain.ReviewClaim{
			By:        doc.ReviewClaim.By,
			Token:     doc.ReviewClaim.Token,
			ExpiresAt: doc.ReviewClaim.ExpiresAt,
		}
	}
	return sub
}
