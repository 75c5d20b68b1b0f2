package models

// Limits are the runtime-mutable course quotas.
type Limits struct {
	MaxEvaluatorsPerCourse uint64 `db:"max_evaluators_per_course" json:"max_evaluators_per_course" validate:"required,gte=1"`
	MaxPlacesPerCourse     uint64 `db:"max_places_per_course" json:"max_places_per_course" validate:"required,gte=1"`
}

// ContractInfo describes collection-level metadata.
type ContractInfo struct {
	ContractURI   string `json:"contract_uri"`
	BaseCourseFee uint64 `json:"base_course_fee"`
	Limits        Limits `json:"limits"`
}
