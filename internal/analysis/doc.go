// Package analysis post-processes stored runs.
//
// A bifurcation run sweeps the speed and reports, for every point, the
// post-transient motion of one sample column, usually the lateral
// displacement of a wheelset:
//
//   - [Bifurcation]: distinct extrema, amplitude and dominant frequency per point
//   - [CriticalSpeed]: lowest speed at which hunting persists
//   - [DiagramToASCII]: the extrema against speed as a character plot
//
// A stable point settles to a single extremum. A hunting point keeps a limit
// cycle whose two extrema are the branches of the diagram:
//
//	branches, err := analysis.Bifurcation(meta, samples, "ws1.Y", 0.5)
//	v, ok := analysis.CriticalSpeed(branches, 1e-3)
package analysis
