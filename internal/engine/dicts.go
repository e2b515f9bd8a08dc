package engine

// Concept is a minimal vocabulary row written alongside generated data so
// the generated foreign keys resolve once constraints are applied.
type Concept struct {
	ID         int
	Name       string
	Domain     string
	Vocabulary string
	Class      string
	Code       string
	Standard   string
}

// NoMatchingConcept is the CDM's placeholder concept 0.
const NoMatchingConcept = 0

var (
	GenderConcepts    = []int{8507, 8532}
	RaceConcepts      = []int{8527, 8516, 8515, 8657, 8557}
	EthnicityConcepts = []int{38003563, 38003564}
	VisitConcepts     = []int{9201, 9202, 9203}
	ConditionConcepts = []int{320128, 201826, 255573, 4329847, 317009, 432867, 80180, 140168}

	TypeConceptEHR    = 32817
	PeriodTypeConcept = 44814724
	CDMVersionConcept = 756265
	DeathTypeConcept  = 32817
)

var Concepts = []Concept{
	{NoMatchingConcept, "No matching concept", "Metadata", "None", "Undefined", "No matching concept", ""},
	{8507, "MALE", "Gender", "Gender", "Gender", "M", "S"},
	{8532, "FEMALE", "Gender", "Gender", "Gender", "F", "S"},
	{8527, "White", "Race", "Race", "Race", "5", "S"},
	{8516, "Black or African American", "Race", "Race", "Race", "3", "S"},
	{8515, "Asian", "Race", "Race", "Race", "2", "S"},
	{8657, "American Indian or Alaska Native", "Race", "Race", "Race", "1", "S"},
	{8557, "Native Hawaiian or Other Pacific Islander", "Race", "Race", "Race", "4", "S"},
	{38003563, "Hispanic or Latino", "Ethnicity", "Ethnicity", "Ethnicity", "Hispanic", "S"},
	{38003564, "Not Hispanic or Latino", "Ethnicity", "Ethnicity", "Ethnicity", "Not Hispanic", "S"},
	{9201, "Inpatient Visit", "Visit", "Visit", "Visit", "IP", "S"},
	{9202, "Outpatient Visit", "Visit", "Visit", "Visit", "OP", "S"},
	{9203, "Emergency Room Visit", "Visit", "Visit", "Visit", "ER", "S"},
	{32817, "EHR", "Type Concept", "Type Concept", "Type Concept", "OMOP4976890", "S"},
	{44814724, "Period covering healthcare encounters", "Type Concept", "Type Concept", "Type Concept", "OMOP4822323", "S"},
	{756265, "OMOP CDM Version 5.4.0", "Metadata", "None", "Undefined", "CDM v5.4.0", "S"},
	{320128, "Essential hypertension", "Condition", "SNOMED", "Clinical Finding", "59621000", "S"},
	{201826, "Type 2 diabetes mellitus", "Condition", "SNOMED", "Clinical Finding", "44054006", "S"},
	{255573, "Chronic obstructive pulmonary disease", "Condition", "SNOMED", "Clinical Finding", "13645005", "S"},
	{4329847, "Myocardial infarction", "Condition", "SNOMED", "Clinical Finding", "22298006", "S"},
	{317009, "Asthma", "Condition", "SNOMED", "Clinical Finding", "195967001", "S"},
	{432867, "Hyperlipidemia", "Condition", "SNOMED", "Clinical Finding", "55822004", "S"},
	{80180, "Osteoarthritis", "Condition", "SNOMED", "Clinical Finding", "396275006", "S"},
	{140168, "Psoriasis", "Condition", "SNOMED", "Clinical Finding", "9014002", "S"},
}

// Vocabulary, domain and concept class rows point at concept 0.
var (
	Domains        = []string{"Metadata", "Gender", "Race", "Ethnicity", "Visit", "Type Concept", "Condition"}
	Vocabularies   = []string{"None", "Gender", "Race", "Ethnicity", "Visit", "Type Concept", "SNOMED"}
	ConceptClasses = []string{"Undefined", "Gender", "Race", "Ethnicity", "Visit", "Type Concept", "Clinical Finding"}
)

var (
	GenderSourceValues = map[int]string{8507: "M", 8532: "F"}
	VisitSourceValues  = map[int]string{9201: "IP", 9202: "OP", 9203: "ER"}
)
