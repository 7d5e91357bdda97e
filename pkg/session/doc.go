/*
Package session serializes access to conversation records.

Turns for one session must run strictly one after another because question
tracking and transition checks read the answered set and current stage. The
Manager guarantees this with a ref-counted mutex per session and, for
deployments where several replicas may receive turns for the same session, an
optional distributed lock.
*/
package session
