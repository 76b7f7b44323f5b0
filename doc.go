/*
Package apigate puts an authentication, authorization and response-shaping
front in front of every API operation of a service.

The Gate decides who the caller is (from a Basic or Bearer Authorization
header, a token or username/password argument, or a token cookie, in that
order), whether they may invoke the requested operation, and how the result
or error is serialized back: content negotiation against the handler's
supported types, and a canonical response envelope carrying a per-request
identifier, status, optional data or error detail, and flash messages.

Tokens are signed, time-limited and stateless. A valid token past its refresh
threshold is silently reissued during authentication and attached to the
response as the "token" header and a secure cookie.

# Quick Start

	users := store.NewMemory()
	users.MustAddUser("alice", "secret", "reports/*")

	gate, err := apigate.New(
	    apigate.WithUserStore(users),
	    apigate.WithConfig(apigate.Config{TokenSecret: "change-me"}),
	)
	if err != nil {
	    log.Fatal(err)
	}

	http.Handle("/report", gate.Handle("reports/daily", func(rq *apigate.Request) (apigate.Result, error) {
	    return apigate.JSON(map[string]int{"total": 42}), nil
	}))

User lookup, password verification and per-operation access checks live
behind the UserStore interface; the store subpackage ships an in-memory
implementation and a Postgres-backed one. Adapters for gin, echo and gRPC
live under framework/.
*/
package apigate
