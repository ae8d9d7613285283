// Package store persists assessments and control set decisions.
//
// Three backends implement Store:
//
//   - Memory keeps encoded assessments in process, for tests and single runs.
//   - Redis shares assessments between workers, optionally with a TTL.
//   - SQLite keeps them in a local database file via modernc.org/sqlite.
//
// Assessments are stored as JSON, so a loaded assessment never shares
// control sets or threats with the one that was saved. Control set states
// are kept per system model and fed back into the next validation run:
//
//	states, err := s.LoadControlSetStates(ctx, systemModelID)
//	if err != nil {
//		return err
//	}
//	in.ControlSets = append(states, in.ControlSets...)
package store
