// Package conversation runs the bounded senior/junior review conversation.
//
// An Orchestrator resolves both agents' backends through the llm.Registry
// before any provider call, then alternates turns: the senior opens every
// round and a round completes when the junior replies. After each junior
// reply the conversation concludes as agreed if the reply contains the
// agreement sentinel, or as rounds_exhausted once the round cap is reached;
// agreement is checked first. With a cap of zero only the senior speaks.
//
// Failures abort the conversation. Run still returns a Verdict holding the
// transcript of completed turns, together with an *Error whose Kind is one of
// the Err* sentinels.
package conversation
