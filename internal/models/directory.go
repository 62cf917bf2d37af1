package models

// Roster is the fixed set of students, in the order reports list them.
type Roster struct {
	Names []string `json:"names"`
}

// Schedule maps an English weekday name ("Monday") to the ordered subjects
// taught that day.
type Schedule map[string][]string

// SubjectsFor returns the subjects scheduled for the given weekday.
func (s Schedule) SubjectsFor(weekday string) []string {
	return s[weekday]
}

// Admin is one broadcast recipient.
type Admin struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Directory bundles the static operator configuration: who may mark, who
// may browse, and who receives reports.
type Directory struct {
	Admins   []Admin `json:"admins"`
	Teachers []int64 `json:"teachers"`
}
