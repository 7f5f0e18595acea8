package directory

import "time"

// Student is a registered learner.
type Student struct {
	ID         string    `db:"id" json:"id"`
	RollNo     string    `db:"roll_no" json:"roll_no"`
	Name       string    `db:"name" json:"name"`
	Email      string    `db:"email" json:"email,omitempty"`
	Department string    `db:"department" json:"department"`
	Year       string    `db:"year" json:"year"`
	Division   string    `db:"division" json:"division"`
	ImageRef   string    `db:"image_ref" json:"image_ref,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Subject is a course students enroll in.
type Subject struct {
	ID   string `db:"id" json:"id"`
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`
}

// DefaultSubjects is the catalogue seeded on first start.
var DefaultSubjects = []Subject{
	{Code: "FOC", Name: "Fiber Optic Communication"},
	{Code: "ME", Name: "Microwave Engineering"},
	{Code: "MC", Name: "Mobile Computing"},
	{Code: "Ewaste", Name: "E-Waste Management"},
	{Code: "DSAJ", Name: "Data Structures and Algorithms in Java"},
	{Code: "EEFM", Name: "Engineering Economics and Financial Management"},
	{Code: "ME Lab", Name: "Microwave Engineering Lab"},
	{Code: "Mini project", Name: "Mini Project"},
}

// NewStudent is the registration payload.
type NewStudent struct {
	RollNo     string   `json:"roll_no" validate:"required,min=2,max=20,rollno"`
	Name       string   `json:"name" validate:"required,min=2,max=100,personname"`
	Email      string   `json:"email" validate:"omitempty,max=100,email"`
	Department string   `json:"department" validate:"max=50"`
	Year       string   `json:"year" validate:"max=20"`
	Division   string   `json:"division" validate:"max=10"`
	ImageRef   string   `json:"image_ref" validate:"max=500"`
	SubjectIDs []string `json:"subject_ids"`
}

// StudentUpdate carries a partial edit. Nil fields are left untouched; a
// non-nil SubjectIDs replaces the student's enrollments.
type StudentUpdate struct {
	RollNo     *string   `json:"roll_no" validate:"omitempty,min=2,max=20,rollno"`
	Name       *string   `json:"name" validate:"omitempty,min=2,max=100,personname"`
	Email      *string   `json:"email" validate:"omitempty,max=100"`
	Department *string   `json:"department" validate:"omitempty,max=50"`
	Year       *string   `json:"year" validate:"omitempty,max=20"`
	Division   *string   `json:"division" validate:"omitempty,max=10"`
	ImageRef   *string   `json:"image_ref" validate:"omitempty,max=500"`
	SubjectIDs *[]string `json:"subject_ids"`
}

// EnrollmentStatus reports how many subjects a student is enrolled in.
type EnrollmentStatus struct {
	StudentID string `db:"id" json:"student_id"`
	RollNo    string `db:"roll_no" json:"roll_no"`
	Name      string `db:"name" json:"name"`
	Enrolled  int    `db:"enrolled" json:"enrolled"`
	Total     int    `db:"total" json:"total"`
}

// Complete reports whether the student takes every subject in the catalogue.
func (e EnrollmentStatus) Complete() bool { return e.Enrolled >= e.Total }
