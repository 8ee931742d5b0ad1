// Package loopback provides a browser surface that hands the flow to the
// user's system browser and receives the result on a local HTTP server.
//
// OAuth2 redirects arrive on the callback path. Parameters delivered in the
// URL fragment never reach a server, so a bare callback request is answered
// with a small page that posts the fragment back. SAML responses are posted
// to the assertion consumer path; the posted field is kept until the
// coordinator runs the extraction hook.
//
// The system browser cannot be observed, so only the final redirect or post
// produces navigation events. Intermediate pages are invisible to the flow.
package loopback
