// Package bridge connects user messages to the external coding-agent
// CLI.
//
// Send authorizes the caller, sanitizes the payload, resolves the
// target session (creating it on demand and sweeping expired ones
// first), builds the backend's argument list, and delegates to the
// executor and parser. The payload always travels via stdin so it can
// never be misread as an argument. Successful invocations persist the
// agent's resume token back into the session store after validating its
// shape.
//
// All failures are returned inside the InvocationResult; nothing is
// raised past this boundary, which lets the orchestration layer decide
// how much of a partial result to show.
package bridge
