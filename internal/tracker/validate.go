package tracker

// ValidateIssue checks the fields every issue record must carry.
func ValidateIssue(op string, issue Issue) error {
	if issue.Ref.Number <= 0 {
		return Malformed(op, "issue without number")
	}
	if issue.Ref.Owner == "" || issue.Ref.Repo == "" {
		return Malformed(op, "issue #%d without repository", issue.Ref.Number)
	}
	if issue.Milestone != nil && issue.Milestone.Title == "" {
		return Malformed(op, "issue %s has a milestone without title", issue.Ref)
	}
	return nil
}

// ValidateMilestone checks the fields every milestone record must carry.
func ValidateMilestone(op string, m MilestoneRef) error {
	if m.Number <= 0 {
		return Malformed(op, "milestone without number")
	}
	if m.Title == "" {
		return Malformed(op, "milestone #%d without title", m.Number)
	}
	return nil
}
