// internal/app/store/applications/query.go
package applicationstore

import (
	"time"

	"github.com/dalemusser/bourses/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SortField names a list ordering.
type SortField string

const (
	SortCreatedAt SortField = "createdAt" // newest first
	SortStatus    SortField = "status"    // lifecycle order
	SortAmount    SortField = "amount"    // largest decision first
)

// ParseSort maps a query-string value to a SortField, defaulting to SortCreatedAt.
func ParseSort(s string) SortField {
	switch SortField(s) {
	case SortStatus, SortAmount:
		return SortField(s)
	default:
		return SortCreatedAt
	}
}

// Query selects applications of one institution.
type Query struct {
	InstitutionID primitive.ObjectID
	Statuses      []models.Status // empty means any
	Paid          bool            // only decisions granting a positive amount
	Sort          SortField
	Reverse       bool
	Offset        int64
	Limit         int64 // 0 means no limit
}

func (q Query) filter() bson.M {
	f := bson.M{"institution_id": q.InstitutionID}
	if len(q.Statuses) > 0 {
		f["status"] = bson.M{"$in": q.Statuses}
	}
	if q.Paid {
		f["notification.amount"] = bson.M{"$gt": 0}
	}
	return f
}

func (q Query) sort() bson.D {
	dir := -1
	field := "created_at"
	switch q.Sort {
	case SortStatus:
		field, dir = "status", 1
	case SortAmount:
		field = "notification.amount"
	}
	if q.Reverse {
		dir = -dir
	}
	return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: dir}}
}

// Patch describes the fields a conditional update changes. Nil pointers
// leave the field alone; the Clear flags remove it.
type Patch struct {
	Status            *models.Status
	Payload           *models.EncodedPayload
	Notification      *models.Notification
	ClearNotification bool
	Observations      *string
	Lease             *time.Time
	ClearLease        bool
}

func (p Patch) update(now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	unset := bson.M{}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Payload != nil {
		set["payload"] = *p.Payload
	}
	if p.Notification != nil {
		set["notification"] = *p.Notification
	} else if p.ClearNotification {
		unset["notification"] = ""
	}
	if p.Observations != nil {
		set["observations"] = *p.Observations
	}
	if p.Lease != nil {
		set["enrichment_lease"] = *p.Lease
	} else if p.ClearLease {
		unset["enrichment_lease"] = ""
	}

	u := bson.M{"$set": set, "$inc": bson.M{"version": 1}}
	if len(unset) > 0 {
		u["$unset"] = unset
	}
	return u
}

func (p Patch) apply(rec *models.Application, now time.Time) {
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.Payload != nil {
		rec.Payload = clonePayload(*p.Payload)
	}
	if p.Notification != nil {
		n := *p.Notification
		rec.Notification = &n
	} else if p.ClearNotification {
		rec.Notification = nil
	}
	if p.Observations != nil {
		rec.Observations = *p.Observations
	}
	if p.Lease != nil {
		l := *p.Lease
		rec.EnrichmentLease = &l
	} else if p.ClearLease {
		rec.EnrichmentLease = nil
	}
	rec.Version++
	rec.UpdatedAt = now
}

func clonePayload(p models.EncodedPayload) models.EncodedPayload {
	return models.EncodedPayload{
		Ciphertext: append([]byte(nil), p.Ciphertext...),
		Nonce:      append([]byte(nil), p.Nonce...),
		Tag:        append([]byte(nil), p.Tag...),
	}
}

func cloneApplication(rec models.Application) models.Application {
	out := rec
	out.Payload = clonePayload(rec.Payload)
	if rec.Notification != nil {
		n := *rec.Notification
		out.Notification = &n
	}
	if rec.EnrichmentLease != nil {
		l := *rec.EnrichmentLease
		out.EnrichmentLease = &l
	}
	return out
}
