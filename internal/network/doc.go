// Package network tracks host connectivity and tells subscribers when it changes.
//
// Monitor holds the last known State (optimistically connected until the
// first probe says otherwise). A Prober answers "are we online right now";
// Watchers such as the udev NetlinkWatcher say "something changed, look
// again". A poll interval covers hosts where netlink is unavailable.
package network
