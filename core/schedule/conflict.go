package schedule

// CheckConflicts reports the candidate's overlaps against the sessions already
// booked on its date, independently per axis. `existing` is expected to hold
// the sessions sharing the candidate's date and at least one of its room,
// teacher or group; CANCELED sessions and the candidate itself never count.
func CheckConflicts(candidate Session, existing []Session) []Conflict {
	var roomIDs, teacherIDs, groupIDs []string

	for _, booked := range existing {
		if booked.Canceled() || booked.ID == candidate.ID {
			continue
		}
		if !candidate.Overlaps(booked) {
			continue
		}
		if booked.Room == candidate.Room {
			roomIDs = append(roomIDs, booked.ID)
		}
		if booked.Teacher == candidate.Teacher {
			teacherIDs = append(teacherIDs, booked.ID)
		}
		if booked.Group == candidate.Group {
			groupIDs = append(groupIDs, booked.ID)
		}
	}

	var conflicts []Conflict
	if roomIDs != nil {
		conflicts = append(conflicts, Conflict{Kind: ConflictRoom, With: roomIDs})
	}
	if teacherIDs != nil {
		conflicts = append(conflicts, Conflict{Kind: ConflictTeacher, With: teacherIDs})
	}
	if groupIDs != nil {
		conflicts = append(conflicts, Conflict{Kind: ConflictGroup, With: groupIDs})
	}
	return conflicts
}
