package domain

// SessionState is the page state of one browser session.
type SessionState struct {
	// Form holds the last values typed into the form.
	Form FormInput

	// Submitted is true once a submission passed validation.
	Submitted bool
	Record    TrialRecord

	// Validation is set when the last submission was rejected.
	Validation *ValidationError

	Location     Resolution
	Weather      *HourlyWeatherSeries
	WeatherError string
}

// HasWeather reports whether a forecast is held for the current record.
func (s SessionState) HasWeather() bool {
	return s.Submitted && s.Record.WantsWeather && s.Weather != nil
}

// Action is a user action applied to a SessionState.
type Action interface {
	apply(SessionState) SessionState
}

// SubmitRejected records a submission that failed validation.
type SubmitRejected struct {
	Input FormInput
	Err   *ValidationError
}

func (a SubmitRejected) apply(_ SessionState) SessionState {
	return SessionState{Form: a.Input, Validation: a.Err}
}

// SubmitAccepted records a validated submission and its enrichment results.
type SubmitAccepted struct {
	Input        FormInput
	Record       TrialRecord
	Location     Resolution
	Weather      *HourlyWeatherSeries
	WeatherError string
}

func (a SubmitAccepted) apply(_ SessionState) SessionState {
	next := SessionState{
		Form:      a.Input,
		Submitted: true,
		Record:    a.Record,
		Location:  a.Location,
	}
	// Weather only belongs to a record that asked for it and resolved.
	if a.Record.WantsWeather && a.Location.Resolved() {
		next.Weather = a.Weather
		next.WeatherError = a.WeatherError
	}
	return next
}

// Reset returns the form to editing. Every result is cleared; the typed
// form values are kept.
type Reset struct{}

func (Reset) apply(s SessionState) SessionState {
	return SessionState{Form: s.Form}
}

// Apply returns the state that results from applying action to s. A nil
// action leaves the state unchanged.
func Apply(s SessionState, action Action) SessionState {
	if action == nil {
		return s
	}
	return action.apply(s)
}
