package middleware

import "net/url"

// ErrorParam is the query parameter that carries a redirect reason.
const ErrorParam = "error"

// Markers this package writes into ErrorParam. Other values pass through.
const (
	MarkerPleaseLogin        = "please_login"
	MarkerAccountNotFound    = "account_not_found"
	MarkerProfileUnavailable = "profile_unavailable"
)

// Decision is the outcome of the session policy for one request.
type Decision struct {
	redirect bool
	path     string
	query    url.Values
}

func Allow() Decision {
	return Decision{}
}

func RedirectTo(path string, query url.Values) Decision {
	return Decision{redirect: true, path: path, query: query}
}

func (d Decision) Allowed() bool { return !d.redirect }

func (d Decision) Path() string { return d.path }

func (d Decision) Query() url.Values { return d.query }

// Location renders the redirect target as a relative URL.
func (d Decision) Location() string {
	if len(d.query) == 0 {
		return d.path
	}
	return d.path + "?" + d.query.Encode()
}

// Decide is the session policy: a pure function of whether the caller is
// authenticated, the path class and the query.
//
//	user     class               error    decision
//	absent   Protected           any      redirect to login, error=please_login unless set
//	present  AuthFlow or Root    absent   redirect to dashboard
//	present  AuthFlow or Root    present  allow
//	absent   AuthFlow/Root/Other any      allow
//	present  Protected/Other     any      allow
//
// The allow on "present, error present" keeps a signed-in user that was
// sent to login with a reason from bouncing straight back to the dashboard.
func Decide(authenticated bool, class PathClass, query url.Values, routes Routes) Decision {
	hasError := query.Has(ErrorParam)

	switch {
	case !authenticated && class == PathProtected:
		next := cloneQuery(query)
		if !hasError {
			next.Set(ErrorParam, MarkerPleaseLogin)
		}
		return RedirectTo(routes.Login, next)

	case authenticated && (class == PathAuthFlow || class == PathRoot) && !hasError:
		next := cloneQuery(query)
		next.Del(ErrorParam)
		return RedirectTo(routes.Dashboard, next)
	}
	return Allow()
}

// loginWith is the redirect the gate issues when it turns a request away.
func loginWith(routes Routes, marker string) Decision {
	return RedirectTo(routes.Login, url.Values{ErrorParam: {marker}})
}

func cloneQuery(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}
