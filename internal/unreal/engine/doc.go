// Package engine resolves the Unreal Engine root used for an invocation.
//
// Resolution walks a fixed chain and stops at the first validated candidate:
//
//	configured path → session cache → project marker file → environment
//	→ EngineAssociation → upward/downward search → interactive prompt
//
// A candidate is valid only when it contains Engine/Build/BatchFiles. The
// resolved root is kept in an explicit Session for the remainder of the
// editor session and, when a project is in scope, written to the project's
// marker file so the next session starts from it.
//
//	sess := engine.NewSession()
//	loc := engine.NewLocator(engine.DefaultOptions(), engine.WithPrompter(p))
//	res, err := loc.Resolve(ctx, sess, engine.Request{StartDir: dir, Project: proj})
//	if err != nil {
//	    return err
//	}
//	switch res.Outcome {
//	case engine.OutcomeFound:
//	    // use res.Root
//	case engine.OutcomeCancelled:
//	    // user dismissed the prompt
//	}
package engine
