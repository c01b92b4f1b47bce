package domain

import "time"

const (
	productKeyPrefix  = "PRODUCT#"
	orderKeyPrefix    = "ORDER#"
	categoryKeyPrefix = "CATEGORY#"
	userKeyPrefix     = "USER#"

	MetadataSortKey = "METADATA"

	// SortKeyLayout is fixed width so lexical order equals chronological order.
	SortKeyLayout = "2006-01-02T15:04:05.000000000Z"
)

// RecordKeys are the primary and owner/category index keys stored with a record.
type RecordKeys struct {
	PK      string
	SK      string
	IndexPK string
	IndexSK string
}

func ProductKeys(id, category string, createdAt time.Time) RecordKeys {
	return RecordKeys{
		PK:      ProductPK(id),
		SK:      MetadataSortKey,
		IndexPK: CategoryIndexKey(category),
		IndexSK: SortKey(createdAt),
	}
}

func OrderKeys(id, userID string, createdAt time.Time) RecordKeys {
	return RecordKeys{
		PK:      OrderPK(id),
		SK:      MetadataSortKey,
		IndexPK: UserIndexKey(userID),
		IndexSK: SortKey(createdAt),
	}
}

func ProductPK(id string) string { return productKeyPrefix + id }
func OrderPK(id string) string { return orderKeyPrefix + id }
func CategoryIndexKey(cat string) string { return categoryKeyPrefix + cat }
func UserIndexKey(userID string) string { return userKeyPrefix + userID }
func SortKey(t time.Time) string { return t.UTC().Format(SortKeyLayout) }
