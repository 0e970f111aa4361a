/*
Package engine is Arbiter's decision orchestrator and the surface every
caller (HTTP API, CLI, policy directory sync) goes through.

# Decision path

EvaluateIntent runs, in order:

 1. shape validation (decision.Validate); failures return a ValidationError
    and nothing is logged
 2. the pre-check gate; a failed check is a complete deny that never
    reaches the evaluator
 3. the decision cache, keyed by intent fingerprint and policy set
 4. the external evaluator; an evaluation error becomes a deny whose raw
    payload records the error, and a cancelled caller gets a deny with
    reason "evaluation cancelled"
 5. the decision logger, which signs, seals and persists the DecisionLog

A decision that cannot be logged is not returned: the caller receives the
PersistenceError instead.

# Administration

Policy loads and removals, purges, report generation, outcome attachment
and cache clears are recorded in the operations audit with the acting user
taken from the request context.

	eng, err := engine.New(engine.DefaultConfig(), engine.Dependencies{
		Evaluator: client,
		Storage:   store,
		Protector: protector,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Evaluate(ctx, intent)
*/
package engine
