package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Course{},
		&CourseInstance{},
		&Student{},
		&AssignmentTemplate{},
		&GradingCriteriaTemplate{},
		&PublishedAssignment{},
		&PublishedGradingCriteria{},
		&Submission{},
		&SubmissionGrade{},
		&Enrollment{},
		&ActivityLog{},
	}
}
