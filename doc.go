// Package shapgo trains regression models on tabular data, evaluates them on
// a held-out split and explains their predictions with Shapley values.
//
// A run flows through these packages:
//
//   - dataset: frames, CSV and synthetic providers, seeded train/test split
//   - preprocessing: StandardScaler, PolynomialFeatures, OneHotEncoder and the
//     ColumnTransformer that combines them
//   - models: the closed catalog of estimators (linear_regression,
//     random_forest_regressor) and their attribution bindings
//   - pipeline: transformer + estimator, fitted once
//   - metrics: MSE, MAE and R²
//   - importance: model-native feature importance ranking
//   - explain: TreeSHAP and linear SHAP attributions
//   - render: importance and SHAP charts (gonum/plot)
//   - tracking: run store (bbolt + filesystem) and in-memory sink
//   - experiment: the run orchestration tying everything to a sink
//   - config: viper-backed run configuration
//
// # Quick Start
//
//	frame, _ := dataset.SyntheticHousing{Rows: 20000, Seed: 42}.Load(ctx)
//	store, _ := tracking.Open("mlruns")
//	defer store.Close()
//
//	cfg := config.Default()
//	cfg.ModelType = "random_forest_regressor"
//	res, err := experiment.NewRunner(store).Run(ctx, cfg, frame)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Metrics.R2, res.TopFeature)
//
// The same run is available from the command line:
//
//	shapgo train --model-type random_forest_regressor --n-estimators 100
package shapgo

// Version is the release of the module, recorded in logged model descriptors.
const Version = "0.1.0"
