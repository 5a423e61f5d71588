// Package domain models the field trial intake form: the submitted trial
// record, the geocoding and weather enrichment results, and the per-session
// page state that the HTTP layer renders.
//
// # Trial Records
//
// A trial is recorded from five form inputs:
//
//	name        free text, required
//	start_date  YYYY-MM-DD, required, on or after 2000-01-01
//	end_date    YYYY-MM-DD, required, on or after start_date
//	postcode    free text, required, geocoded as-is
//	weather     "No" or "Yes", opt-in to hourly forecast enrichment
//
// Required fields are checked in the order above and only the first
// violation is reported (see [Validate]). The date bounds are primarily
// enforced by the form's min attributes; the server repeats them so crafted
// requests cannot bypass them.
//
// Record IDs are deterministic SHA-256 hashes of name|start|end|postcode, so
// resubmitting the same trial produces the same key downstream.
//
// # Enrichment
//
// Geocoding never fails a submission. A provider timeout is reported as
// [StatusNotFound], the same as an empty match; other provider failures are
// reported as [StatusUnavailable]. Both leave coordinates absent.
//
// Weather data is fetched only when the user opted in and the postcode
// resolved. The provider returns an hourly window described by a start
// instant, an end instant and a step interval:
//
//	rows = (end - start) / interval    start inclusive, end exclusive
//
// [NewHourlySeries] rejects windows whose instants are not contiguous or
// whose value arrays do not match the row count.
//
// # Session State
//
// [SessionState] is owned by exactly one browser session. It changes only
// through [Apply], a pure function of the current state and an [Action]:
//
//	Editing --SubmitAccepted--> Submitted --Reset--> Editing
//	Editing --SubmitRejected--> Editing (validation message shown)
//
// Reset clears every result but keeps the typed form values so the user can
// edit and resubmit.
package domain
