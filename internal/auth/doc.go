// Package auth manages provider authorization and token lifecycle.
//
// The manager runs the authorization-code-with-PKCE flow against each
// provider's OAuth endpoints, persists encrypted token references on the
// user's connected account, and refreshes tokens nearing expiry. Plaintext
// tokens exist only inside a single manager call; everything that crosses
// the store boundary is protected first.
package auth
