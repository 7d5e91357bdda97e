/*
Package orderflow is a dialogue orchestration engine for an ordering assistant.

A conversation moves through a fixed graph of stages (greeting, menu browsing,
item selection, order review, delivery details and so on). Each user turn is
handled in one of two ways. When the current stage has a pending structured
question, the utterance is checked against the question's options and the
answer is recorded without consulting any backend. Otherwise a generative
backend is asked for a reply, the reply is parsed into text plus typed UI
directives, and the proposed next stage is checked against the graph.

The backend is never trusted. Replies that are not structured go down a
fallback ladder (keyword conversion, inline markers, a fixed apology with
navigation) so that every turn yields something the caller can render, and
an illegal stage proposal is replaced by a rule-derived legal one.

# Usage

	eng, err := orderflow.New(
		orderflow.WithBackend(myBackend),
		orderflow.WithLogger(logger),
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	opening, _ := eng.Start(ctx, "session-123")
	fmt.Println(opening.Text)

	res, err := eng.Send(ctx, "session-123", "I'd like to order")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Stage, res.Text)
	for _, d := range res.Directives {
		fmt.Println(d.Type, d.Title)
	}

# Extension points

The backend, catalog, knowledge base, session store and distributed locker
are ports (see pkg/ports). Stage graphs can be declared in YAML, built with
stagegraph.NewBuilder or loaded from a Loam repository of markdown files.
Lifecycle hooks expose every turn, stage change, substitution, fallback and
backend call; pkg/observability binds them to Prometheus.
*/
package orderflow
