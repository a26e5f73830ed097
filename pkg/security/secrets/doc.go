// Package secrets resolves ${secret:name} references in configuration
// values.
//
// Secret-bearing configuration fields such as the internal auth secret or
// database passwords may hold a reference instead of the value itself:
//
//	server:
//	  internal_auth_secret: ${secret:internal-auth}
//
// A Manager tries its providers in order and substitutes the first value
// found. EnvProvider reads SPENDCAP_SECRET_INTERNAL_AUTH for the name above;
// DirProvider reads a file named internal-auth from a mounted secrets
// directory.
package secrets
