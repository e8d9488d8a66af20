// Package frontier is the crawl work queue.
//
// Each enabled network has its own priority partition. A candidate's
// priority is tier_weight / (depth + 2), fixed at admission, and equal
// priorities are served in admission order. Workers call Take for their
// network and park until a candidate is eligible; every candidate they take
// is handed back with Complete or Requeue.
package frontier
