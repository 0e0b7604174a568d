package trackstore

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/omeyang/xtrack/pkg/business/xtracking"
)

// 字段名
const (
	fieldTrackingNumber = "tracking_number"
	fieldCreatedAt      = "created_at"
	fieldOrigin         = "origin_country_id"
	fieldDestination    = "destination_country_id"
	fieldCustomerName   = "customer_name"
	fieldCustomerSlug   = "customer_slug"
)

// document 集合中的文档形态。
type document struct {
	ID             string    `bson:"_id"`
	TrackingNumber string    `bson:"tracking_number"`
	CreatedAt      time.Time `bson:"created_at"`
	OrderCreatedAt time.Time `bson:"order_created_at"`
	Origin         string    `bson:"origin_country_id"`
	Destination    string    `bson:"destination_country_id"`
	Weight         float64   `bson:"weight"`
	CustomerID     string    `bson:"customer_id"`
	CustomerName   string    `bson:"customer_name"`
	CustomerSlug   string    `bson:"customer_slug"`
}

func fromRecord(r *xtracking.Record) document {
	return document{
		ID:             r.ID,
		TrackingNumber: r.TrackingNumber,
		CreatedAt:      r.CreatedAt.UTC(),
		OrderCreatedAt: r.OrderCreatedAt.UTC(),
		Origin:         r.Origin,
		Destination:    r.Destination,
		Weight:         r.Weight,
		CustomerID:     r.CustomerID.String(),
		CustomerName:   r.CustomerName,
		CustomerSlug:   r.CustomerSlug,
	}
}

func (d *document) record() (xtracking.Record, error) {
	var customerID uuid.UUID
	if d.CustomerID != "" {
		id, err := uuid.Parse(d.CustomerID)
		if err != nil {
			return xtracking.Record{}, fmt.Errorf("trackstore: document %s customer id: %w", d.ID, err)
		}
		customerID = id
	}
	return xtracking.Record{
		ID:             d.ID,
		TrackingNumber: d.TrackingNumber,
		CreatedAt:      d.CreatedAt,
		OrderCreatedAt: d.OrderCreatedAt,
		Origin:         d.Origin,
		Destination:    d.Destination,
		Weight:         d.Weight,
		CustomerID:     customerID,
		CustomerName:   d.CustomerName,
		CustomerSlug:   d.CustomerSlug,
	}, nil
}

func records(docs []document) ([]xtracking.Record, error) {
	out := make([]xtracking.Record, 0, len(docs))
	for i := range docs {
		r, err := docs[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// =============================================================================
// 查询条件
// =============================================================================

// filterFor 把搜索条件转换为 MongoDB 过滤器。
// criteria 先按 Effective 裁剪，只有决定查询的分组参与过滤。
func filterFor(criteria xtracking.Criteria) bson.D {
	c := criteria.Effective()
	switch {
	case c.TrackingNumber != "":
		return bson.D{{Key: fieldTrackingNumber, Value: c.TrackingNumber}}
	case c.CustomerName != "":
		return bson.D{{Key: fieldCustomerName, Value: containsFold(c.CustomerName)}}
	case c.CustomerSlug != "":
		return bson.D{{Key: fieldCustomerSlug, Value: containsFold(c.CustomerSlug)}}
	}

	filter := bson.D{}
	if c.Origin != "" {
		filter = append(filter, bson.E{Key: fieldOrigin, Value: c.Origin})
	}
	if c.Destination != "" {
		filter = append(filter, bson.E{Key: fieldDestination, Value: c.Destination})
	}
	return filter
}

// containsFold 不区分大小写的包含匹配，输入中的正则元字符按字面量处理。
func containsFold(s string) bson.Regex {
	return bson.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// sortFor 返回列表排序。tracking_number 作为次级键，保证分页稳定。
func sortFor(order xtracking.OrderBy) bson.D {
	dir := -1
	if order == xtracking.OrderCreatedAtAsc {
		dir = 1
	}
	return bson.D{
		{Key: fieldCreatedAt, Value: dir},
		{Key: fieldTrackingNumber, Value: dir},
	}
}
