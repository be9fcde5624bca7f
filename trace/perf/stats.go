package perf

// Stat names a diagnostic counter.
type Stat uint8

const (
	// A record other than a sample was dropped.
	StatRecordSkipped Stat = iota
	// A sample was dropped.
	StatSamplesSkipped
	// A call chain frame had no mapping and was attributed to the dummy mapping.
	StatDummyMappingUsed
	// Indexed by record type.
	StatUnknownRecordType
	// Indexed by feature ID.
	StatFeaturesSkipped
	// An aux record was dropped because no AuxSink was configured.
	StatAuxIgnored

	NumStats
)

var statNames = [NumStats]string{
	StatRecordSkipped:     "perf_record_skipped",
	StatSamplesSkipped:    "perf_samples_skipped",
	StatDummyMappingUsed:  "perf_dummy_mapping_used",
	StatUnknownRecordType: "perf_unknown_record_type",
	StatFeaturesSkipped:   "perf_features_skipped",
	StatAuxIgnored:        "perf_aux_ignored",
}

func (s Stat) String() string {
	if s < NumStats {
		return statNames[s]
	}
	return "perf_unknown_stat"
}

// Indexed reports whether the stat is tracked per index rather than as a single counter.
func (s Stat) Indexed() bool {
	return s == StatUnknownRecordType || s == StatFeaturesSkipped
}
