package models

import "time"

// Course is a catalogue entry. The coursework core only reads it.
type Course struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"size:32;uniqueIndex;not null" json:"code"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CourseInstance is one semester's offering of a course.
type CourseInstance struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CourseID        uint      `gorm:"not null;index" json:"course_id"`
	Semester        string    `gorm:"size:64;not null" json:"semester"`
	EnrollmentOpen  bool      `gorm:"not null;default:false" json:"enrollment_open"`
	EnrollmentLimit *int      `json:"enrollment_limit"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Course          Course    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// HasCapacity reports whether another student fits given the current enrolled count.
func (i CourseInstance) HasCapacity(enrolled int64) bool {
	if i.EnrollmentLimit == nil {
		return true
	}
	return enrolled < int64(*i.EnrollmentLimit)
}
