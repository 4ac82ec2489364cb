package email

const (
	subjectPrefix = "[Rental inspections] "
)

// Subject prefixes s with the product name.
func Subject(s string) string {
	return subjectPrefix + s
}
