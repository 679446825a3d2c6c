package main

import (
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

var (
	nixFiles         = predict.Files("*.nix")
	sharedPredictors = map[string]complete.Predictor{
		"config":   predict.Files("*.yaml"),
		"pretty":   predict.Nothing,
		"restrict": predict.Nothing,
		"I":        predict.Dirs("*"),
	}
)

func withShared(flags map[string]complete.Predictor) map[string]complete.Predictor {
	out := make(map[string]complete.Predictor, len(flags)+len(sharedPredictors))
	for k, v := range sharedPredictors {
		out[k] = v
	}
	for k, v := range flags {
		out[k] = v
	}
	return out
}

var completer = &complete.Command{
	Sub: map[string]*complete.Command{
		"eval": {
			Flags: withShared(map[string]complete.Predictor{
				"strict":   predict.Nothing,
				"lazy":     predict.Nothing,
				"expanded": predict.Nothing,
				"json":     predict.Nothing,
				"e":        predict.Something,
			}),
			Args: nixFiles,
		},
		"parse": {
			Flags: withShared(map[string]complete.Predictor{
				"color": predict.Nothing,
				"e":     predict.Something,
			}),
			Args: nixFiles,
		},
		"check": {
			Flags: withShared(map[string]complete.Predictor{
				"e": predict.Something,
			}),
			Args: nixFiles,
		},
		"builtins": {},
		"policy":   {},
		"repl":     {Flags: withShared(nil)},
		"help":     {},
	},
}
