/*
Package handle implements the opaque token table shared by every boundary call.

Values are moved into a slot and callers receive a Token, an integer carrying the slot index
and a generation counter. Each slot also records the Go type it was wrapped as, so a token
used as the wrong kind of object, a token used after release, and a token released twice are
all reported as errors instead of touching freed or foreign memory.
*/
package handle
