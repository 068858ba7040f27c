/*
Package graph implements the validation predicates of a question graph.

Validate checks the structural rules every traversable node set must satisfy
and reports each problem at the exact address of the offending field, so that
editors can highlight it:

	q-{i}          the i-th node (0-based, in the order given)
	q-{i}-c-{j}    the j-th choice of the i-th node
	graph          whole-graph problems (roots)

The package also offers reachability and cycle detection used by the
authoring tools and the preview.
*/
package graph
