package model

import "time"

// CanAssign reports whether the request may (re)gain an assignee.
func (r *Request) CanAssign() bool {
	return r.Status == StatusUnassigned || r.Status == StatusReassignRequested
}

// CanRequestReassign reports whether a reassignment may be requested.
func (r *Request) CanRequestReassign() bool {
	return r.Status == StatusAssigned
}

// CanComplete reports whether the request may be closed out.
func (r *Request) CanComplete() bool {
	return r.Status == StatusAssigned || r.Status == StatusReassignRequested
}

// ApplyAssign moves the request to Assigned and records the activity.
// The status write and the log append always happen together.
func (r *Request) ApplyAssign(assignee IdName, actor IdName, slot TimeBlock, comment string, activityID string, now time.Time) {
	r.Status = StatusAssigned
	r.AssignedToID = assignee.ID
	r.AssignedToName = assignee.Name
	r.AssignedTimeBlock = &slot
	r.Activities = append(r.Activities, Activity{
		ID:                activityID,
		Type:              ActivityAssigned,
		CreatedBy:         actor,
		ActivityForUserID: assignee.ID,
		Comment:           comment,
		CreatedDateTime:   now,
	})
	r.UpdatedDateTime = now
}

// ApplyReassignRequest flags the current assignment for handoff. The
// activity targets the agent being relieved, not the actor.
func (r *Request) ApplyReassignRequest(actor IdName, comment string, activityID string, now time.Time) {
	r.Activities = append(r.Activities, Activity{
		ID:                activityID,
		Type:              ActivityReassignRequested,
		CreatedBy:         actor,
		ActivityForUserID: r.AssignedToID,
		Comment:           comment,
		CreatedDateTime:   now,
	})
	r.Status = StatusReassignRequested
	r.UpdatedDateTime = now
}

// ApplyComplete moves the request to its terminal state.
func (r *Request) ApplyComplete(actor IdName, comment string, activityID string, now time.Time) {
	r.Status = StatusCompleted
	r.Activities = append(r.Activities, Activity{
		ID:                activityID,
		Type:              ActivityCompleted,
		CreatedBy:         actor,
		ActivityForUserID: r.AssignedToID,
		Comment:           comment,
		CreatedDateTime:   now,
	})
	r.UpdatedDateTime = now
}

// AddNote appends a note. Legal in any state, including Completed.
func (r *Request) AddNote(id, text string, actor IdName, now time.Time) Note {
	n := Note{ID: id, Text: text, CreatedBy: actor, CreatedDateTime: now}
	r.Notes = append(r.Notes, n)
	r.UpdatedDateTime = now
	return n
}

// AddAttachment appends an attachment reference. Legal in any state.
func (r *Request) AddAttachment(id, title, uri string, actor IdName, now time.Time) Attachment {
	a := Attachment{ID: id, Title: title, URI: uri, CreatedBy: actor, CreatedDateTime: now}
	r.Attachments = append(r.Attachments, a)
	r.UpdatedDateTime = now
	return a
}

// LastActivity returns the newest activity entry, or nil for a fresh request.
func (r *Request) LastActivity() *Activity {
	if len(r.Activities) == 0 {
		return nil
	}
	return &r.Activities[len(r.Activities)-1]
}
