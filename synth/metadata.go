package synth

// Arrow field and schema metadata keys used to carry column descriptors
// through Arrow schemas, IPC streams and parquet files.
const (
	MetaTags       = "vgi_synth.tags"
	MetaProperties = "vgi_synth.properties"
	MetaIsList     = "vgi_synth.is_list"
	MetaIsRagged   = "vgi_synth.is_ragged"
	MetaShape      = "vgi_synth.shape"
	MetaKind       = "vgi_synth.kind"
	// MetaTensorShape is the per-row shape of a generated tensor column,
	// which differs from MetaShape for fixed shapes with a leading 1.
	MetaTensorShape = "vgi_synth.tensor_shape"

	MetaNumRows = "vgi_synth.num_rows"
	MetaSeed    = "vgi_synth.seed"
	MetaRunID   = "vgi_synth.run_id"
)
