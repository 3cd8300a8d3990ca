package lgledger

// ByzantineMajority returns the minimum number of matching replies
// required out of n configured nodes for a result to be authoritative,
// i.e. floor(2n/3)+1.
//
// For example, a pool of 4 nodes tolerates one faulty node
// and requires 3 matching replies.
func ByzantineMajority(n int) int {
	return (2*n)/3 + 1
}
