/*
Package faresdk provides a client SDK for the municipal bus-fare backend.

# Overview

The backend owns authentication, fare rules, payments and persistence. This
package is a thin typed layer over its JSON REST API: it builds requests,
attaches the bearer token, and maps error responses into typed errors.

	client := faresdk.NewClient("https://api.example.com")

	// Unauthenticated: exchange credentials for a token and profile
	login, err := client.Login(ctx, faresdk.Credentials{CPF: "00000000000", Password: "admin123"})

Authenticated calls read the token from a TokenSource on every request, so
a session service can swap or clear it at any time:

	client.Tokens = sessionService
	client.OnUnauthorized = sessionService.OnUnauthorized

	intent, err := client.CreatePixPayment(ctx, 1050)
	status, err := client.PaymentStatus(ctx, intent.ID)

# Unauthorized responses

A 401 on an authenticated call means the stored credential is no longer
valid. The client invokes OnUnauthorized with the rejected token before
returning, and the returned error matches ErrUnauthorized:

	if errors.Is(err, faresdk.ErrUnauthorized) {
		// session already cleared by the hook
	}

A 401 from Login is a plain authentication failure and does not invoke the
hook.

# Transport failures

Network errors are wrapped with ErrTransport so callers can tell "no
response" apart from a backend rejection:

	if errors.Is(err, faresdk.ErrTransport) {
		// show a notification, nothing was applied
	}

# Resources

Fleet and administration listings share one generic Resource type:

	buses, err := client.Buses().List(ctx)
	route, err := client.Routes().Get(ctx, "42")
*/
package faresdk
