package constants

// ID prefixes for platform resources. IDs are opaque, URL-safe and at most
// 64 characters including the prefix.
const (
	PrefixSpace  = "spc_"
	PrefixBase   = "base_"
	PrefixTable  = "tbl_"
	PrefixField  = "fld_"
	PrefixRecord = "rec_"
	PrefixView   = "viw_"
	PrefixCollab = "col_"
)

// MaxIDLength is the upper bound for any resource ID.
const MaxIDLength = 64

// OT collection prefixes. Record documents live on "rec_<tableId>",
// field-schema documents on the sibling "fld_<tableId>".
const (
	CollectionRecordPrefix = "rec_"
	CollectionFieldPrefix  = "fld_"
)

// HTTP plumbing keys.
const (
	HeaderAuthorization = "Authorization"
	ContextKeyUser      = "user"
)
