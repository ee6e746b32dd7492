// Package vehicle assembles rigid bodies and their suspension into a tree
// and evaluates the equations of motion of the whole vehicle.
//
// The tree has a [CarBody] at the root, [BogieFrame] bodies below it and
// [WheelSet] leaves. Every body owns a contiguous window of the state
// vector holding interleaved coordinates and rates (Y, Z, PHI, PSI and, for
// wheelsets, the axle spin perturbation BETA). Coordinates are small motions
// relative to the track at the body; suspension forces are computed in the
// common vehicle frame, which accounts for the curve geometry.
//
// [Model.Fun] and [Model.Jacobian] recurse the tree children first. The
// Jacobian is assembled from central differences of each body's own
// right-hand side over the indices it depends on, with the fixed step
// [Delta].
package vehicle
