package checkout

// View identifies the screen the browser shell should render.
type View string

const (
	ViewCatalog View = "catalog"
	ViewDetail  View = "purchase"
	ViewPayment View = "payment"
	ViewPending View = "pending"
	ViewSuccess View = "success"
	ViewError   View = "error"
)

// Path returns the client-side route for the view.
func (v View) Path() string {
	switch v {
	case ViewCatalog:
		return "/"
	case ViewDetail:
		return "/purchase"
	case ViewPayment, ViewPending:
		return "/payment"
	case ViewSuccess:
		return "/success"
	default:
		return "/error"
	}
}

// Route maps a confirmation outcome to the view that presents it.
// Unknown outcomes are treated as failures.
func Route(outcome Outcome) View {
	switch outcome {
	case OutcomeSucceeded:
		return ViewSuccess
	case OutcomePending:
		return ViewPending
	default:
		return ViewError
	}
}

// View returns the screen for the attempt's current state.
func (a *Attempt) View() View {
	switch a.State {
	case StateIdle:
		return ViewDetail
	case StateReady:
		return ViewPayment
	case StateSubmitting:
		return ViewPending
	default:
		return Route(a.Outcome)
	}
}
